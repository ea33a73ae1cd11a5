package rabbitmq

import (
	"fmt"
	"math"
	"time"

	"github.com/glimte/mmate-producers/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ToPublishing converts a message into an AMQP publishing.
// Header values the AMQP field table cannot carry are converted; a zero delivery mode becomes persistent.
func ToPublishing(msg *contracts.Message) amqp.Publishing {
	props := msg.Properties

	pub := amqp.Publishing{
		ContentType:     props.ContentType,
		ContentEncoding: props.ContentEncoding,
		DeliveryMode:    props.DeliveryMode,
		Priority:        props.Priority,
		CorrelationId:   props.CorrelationID,
		ReplyTo:         props.ReplyTo,
		Expiration:      props.Expiration,
		MessageId:       props.MessageID,
		Timestamp:       props.Timestamp,
		Type:            props.Type,
		UserId:          props.UserID,
		AppId:           props.AppID,
		Body:            msg.Body,
	}
	if pub.DeliveryMode == 0 {
		pub.DeliveryMode = amqp.Persistent
	}
	if len(props.Headers) > 0 {
		pub.Headers = make(amqp.Table, len(props.Headers))
		for k, v := range props.Headers {
			pub.Headers[k] = tableValue(v)
		}
	}
	return pub
}

// FromDelivery converts a received delivery into a message
func FromDelivery(d *amqp.Delivery) *contracts.Message {
	msg := contracts.NewMessage(d.Body)
	msg.Properties = contracts.MessageProperties{
		MessageID:       d.MessageId,
		CorrelationID:   d.CorrelationId,
		ContentType:     d.ContentType,
		ContentEncoding: d.ContentEncoding,
		ReplyTo:         d.ReplyTo,
		Type:            d.Type,
		AppID:           d.AppId,
		UserID:          d.UserId,
		Expiration:      d.Expiration,
		Priority:        d.Priority,
		DeliveryMode:    d.DeliveryMode,
		Timestamp:       d.Timestamp,
		Headers:         make(map[string]interface{}, len(d.Headers)),
	}
	for k, v := range d.Headers {
		msg.Properties.Headers[k] = plainValue(v)
	}
	return msg
}

func tableValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, bool, int8, uint8, int16, int32, int64, int, float32, float64, string, []byte,
		time.Time, amqp.Decimal:
		return val
	case uint16:
		return int32(val)
	case uint32:
		return int64(val)
	case uint:
		return unsignedValue(uint64(val))
	case uint64:
		return unsignedValue(val)
	case amqp.Table:
		return tableOf(val)
	case map[string]interface{}:
		return tableOf(val)
	case map[string]string:
		t := make(amqp.Table, len(val))
		for k, s := range val {
			t[k] = s
		}
		return t
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = tableValue(e)
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func tableOf(m map[string]interface{}) amqp.Table {
	t := make(amqp.Table, len(m))
	for k, v := range m {
		t[k] = tableValue(v)
	}
	return t
}

func unsignedValue(u uint64) interface{} {
	if u > math.MaxInt64 {
		return fmt.Sprint(u)
	}
	return int64(u)
}

func plainValue(v interface{}) interface{} {
	switch val := v.(type) {
	case amqp.Table:
		m := make(map[string]interface{}, len(val))
		for k, e := range val {
			m[k] = plainValue(e)
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = plainValue(e)
		}
		return out
	default:
		return val
	}
}
