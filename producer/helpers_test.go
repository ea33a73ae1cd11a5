package producer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/glimte/mmate-producers/contracts"
	"github.com/stretchr/testify/mock"
)

// Mock implementations for testing
type mockClient struct {
	mock.Mock
}

func (m *mockClient) Send(ctx context.Context, addr contracts.Address, msg *contracts.Message) error {
	args := m.Called(ctx, addr, msg)
	return args.Error(0)
}

func (m *mockClient) SendAndReceive(ctx context.Context, addr contracts.Address, msg *contracts.Message) (*contracts.Message, error) {
	args := m.Called(ctx, addr, msg)
	reply, _ := args.Get(0).(*contracts.Message)
	return reply, args.Error(1)
}

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) RecordCall(method string, strategy string, duration time.Duration, success bool) {
	m.Called(method, strategy, success)
}

func (m *mockMetrics) RecordNoReply(method string) {
	m.Called(method)
}

// textConverter converts bodies to and from plain text
type textConverter struct{}

func (textConverter) ToMessage(body interface{}, props contracts.MessageProperties) (*contracts.Message, error) {
	msg := &contracts.Message{Properties: props}
	msg.Properties.ContentType = contracts.ContentTypeText
	if body != nil {
		msg.Body = []byte(fmt.Sprint(body))
	}
	return msg, nil
}

func (textConverter) FromMessage(msg *contracts.Message) (interface{}, error) {
	return string(msg.Body), nil
}

// failingConverter fails every conversion
type failingConverter struct{ err error }

func (c failingConverter) ToMessage(body interface{}, props contracts.MessageProperties) (*contracts.Message, error) {
	return nil, c.err
}

func (c failingConverter) FromMessage(msg *contracts.Message) (interface{}, error) {
	return nil, c.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialIDs(prefix string) IDGenerator {
	var n int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&n, 1))
	}
}

func newTestFactory(client MessagingClient, options ...FactoryOption) *Factory {
	opts := []FactoryOption{
		WithClient(client),
		WithConverter(textConverter{}),
		WithLogger(quietLogger()),
	}
	return NewFactory(append(opts, options...)...)
}

func replyMessage(body string, headers map[string]interface{}) *contracts.Message {
	msg := contracts.NewMessage([]byte(body))
	msg.Properties.MessageID = "reply-1"
	msg.Properties.CorrelationID = "corr-1"
	for k, v := range headers {
		msg.Properties.SetHeader(k, v)
	}
	return msg
}

// greeterDecl is the Greeter client used across tests
var greeterDecl = Interface{
	Name: "Greeter",
	Methods: []Method{
		{
			Name:     "Hello",
			Producer: &Producer{Destination: "sayHello"},
			Params:   []Param{BodyParam("name"), HeaderParam("lang", "lang")},
			Returns:  Value[string](),
		},
		{
			Name:     "Notify",
			Producer: &Producer{Destination: "greetings/notify"},
			Params:   []Param{BodyParam("name")},
			Returns:  Void(),
		},
		{
			Name:     "HelloMessage",
			Producer: &Producer{Destination: "sayHello"},
			Params:   []Param{BodyParam("name"), HeaderParam("contentType", "Content-Type")},
			Returns:  Generic[string](),
		},
		{
			Name:     "HelloRaw",
			Producer: &Producer{Destination: "sayHello"},
			Params:   []Param{BodyParam("name")},
			Returns:  RawMessage(),
		},
	},
}

// Greeter is the hand-written client surface over greeterDecl
type Greeter interface {
	Hello(ctx context.Context, name, lang string) (string, error)
	Notify(ctx context.Context, name string) error
	HelloMessage(ctx context.Context, name, contentType string) (*contracts.GenericMessage, error)
	HelloRaw(ctx context.Context, name string) (*contracts.Message, error)
}

type greeterClient struct {
	stub *Stub
}

func newGreeter(f *Factory) (Greeter, error) {
	stub, err := f.Build(greeterDecl)
	if err != nil {
		return nil, err
	}
	return &greeterClient{stub: stub}, nil
}

func (c *greeterClient) Hello(ctx context.Context, name, lang string) (string, error) {
	return Call[string](ctx, c.stub, "Hello", name, lang)
}

func (c *greeterClient) Notify(ctx context.Context, name string) error {
	return Send(ctx, c.stub, "Notify", name)
}

func (c *greeterClient) HelloMessage(ctx context.Context, name, contentType string) (*contracts.GenericMessage, error) {
	return CallGeneric(ctx, c.stub, "HelloMessage", name, contentType)
}

func (c *greeterClient) HelloRaw(ctx context.Context, name string) (*contracts.Message, error) {
	return CallMessage(ctx, c.stub, "HelloRaw", name)
}

// replyFailingConverter encodes like textConverter but fails to decode replies
type replyFailingConverter struct {
	textConverter
	err error
}

func (c replyFailingConverter) FromMessage(msg *contracts.Message) (interface{}, error) {
	return nil, c.err
}
