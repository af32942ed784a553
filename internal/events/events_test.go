package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMulti_DeliversToAll(t *testing.T) {
	var got []string
	errBoom := errors.New("boom")

	m := Multi{
		SinkFunc(func(_ context.Context, e Event) error {
			got = append(got, "a:"+string(e.Type))
			return errBoom
		}),
		nil,
		SinkFunc(func(_ context.Context, e Event) error {
			got = append(got, "b:"+string(e.Type))
			return nil
		}),
	}

	err := m.Publish(context.Background(), Event{Type: TypeStarted})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"a:started", "b:started"}, got)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Publish(context.Background(), Event{}))
	assert.NoError(t, Multi{}.Publish(context.Background(), Event{}))
}
