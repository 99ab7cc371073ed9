package domain

// Message is a fully rendered email ready for a transport session.
type Message struct {
	Subject string
	Body    string
	HTML    bool
}

func (m Message) ContentType() string {
	if m.HTML {
		return "text/html"
	}
	return "text/plain"
}
