package contracts

import (
	"strings"
)

// DirectReplyTo is the RabbitMQ pseudo-queue used for direct reply-to
const DirectReplyTo = "amq.rabbitmq.reply-to"

// Address is an exchange and routing key pair
type Address struct {
	Exchange   string
	RoutingKey string
}

// ParseAddress parses a destination string.
//
// "exchange/key" is split on the last '/'. A value without '/', or with only a leading '/',
// targets the default exchange with the value (leading '/' removed) as routing key.
func ParseAddress(destination string) Address {
	if strings.TrimSpace(destination) == "" {
		return Address{}
	}

	if strings.HasPrefix(destination, DirectReplyTo) {
		return Address{RoutingKey: destination}
	}

	idx := strings.LastIndex(destination, "/")
	if idx <= 0 {
		return Address{RoutingKey: strings.Replace(destination, "/", "", 1)}
	}

	return Address{
		Exchange:   destination[:idx],
		RoutingKey: destination[idx+1:],
	}
}

// String renders the address in the same form ParseAddress accepts
func (a Address) String() string {
	if a.Exchange == "" {
		return a.RoutingKey
	}
	return a.Exchange + "/" + a.RoutingKey
}
