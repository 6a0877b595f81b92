package mail

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestResultMessage(t *testing.T) {
	subject, body := ResultMessage("Olimpiade Fisika", 40, 31)

	assert.Equal(t, "Your result for Olimpiade Fisika", subject)
	assert.Contains(t, body, "Correct answers: 31 of 40")
}

func TestLogMailer(t *testing.T) {
	m := NewLogMailer(zerolog.Nop())
	assert.NoError(t, m.Send(context.Background(), "a@b.c", "s", "b"))
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	m := NewSMTPMailer("127.0.0.1", 1, "", "", "no-reply@exstem.local")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Send(ctx, "a@b.c", "s", "b"), context.Canceled)
}
