package mailer

import "sync"

// Message is a delivery captured by MockMailer.
type Message struct {
	Recipient    string
	TemplateFile string
	Data         any
}

type MockMailer struct {
	mu       sync.Mutex
	messages []Message
	failWith error
}

func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

// FailWith makes every following Send return err without recording.
func (m *MockMailer) FailWith(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *MockMailer) Send(recipient, templateFile string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}

	m.messages = append(m.messages, Message{Recipient: recipient, TemplateFile: templateFile, Data: data})
	return nil
}

func (m *MockMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Message(nil), m.messages...)
}
