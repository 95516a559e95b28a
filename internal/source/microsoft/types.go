package microsoft

import "time"

// EmailAddress is a Graph recipient address.
type EmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Recipient wraps an EmailAddress as Graph nests it.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is the content of a message in the requested format.
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Message is the subset of a Graph message resource this package reads.
type Message struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	From             Recipient `json:"from"`
	Body             ItemBody  `json:"body"`
}

// MessageList is one page of a Graph message collection.
type MessageList struct {
	Value    []Message `json:"value"`
	NextLink string    `json:"@odata.nextLink,omitempty"`
}

// ErrorResponse is the Graph error envelope.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
