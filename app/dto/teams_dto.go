package dto

// GraphNotificationPayload is the body Microsoft Graph POSTs to the
// change-notification webhook.
type GraphNotificationPayload struct {
	Value []GraphNotification `json:"value"`
}

// GraphNotification is one change notification
type GraphNotification struct {
	SubscriptionID string            `json:"subscriptionId"`
	ClientState    string            `json:"clientState"`
	ChangeType     string            `json:"changeType"`
	Resource       string            `json:"resource"`
	ResourceData   GraphResourceData `json:"resourceData"`
}

// GraphResourceData identifies the Microsoft user the notification is about
type GraphResourceData struct {
	ID string `json:"id"`
}
