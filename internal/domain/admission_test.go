package domain_test

import (
	"testing"

	"github.com/avolkov/afisha/internal/domain"
	"github.com/stretchr/testify/assert"
)

func publishedEvent(limit, confirmed int, moderation bool) *domain.Event {
	return &domain.Event{
		ID:                1,
		InitiatorID:       10,
		State:             domain.EventPublished,
		ParticipantLimit:  limit,
		ConfirmedRequests: confirmed,
		RequestModeration: moderation,
	}
}

func TestCheckJoin(t *testing.T) {
	tests := []struct {
		name      string
		event     *domain.Event
		requester int64
		wantErr   error
	}{
		{"ok", publishedEvent(5, 0, true), 42, nil},
		{"unlimited never full", publishedEvent(0, 1000, true), 42, nil},
		{"limit reached", publishedEvent(2, 2, true), 42, domain.ErrLimitReached},
		{"own event", publishedEvent(5, 0, true), 10, domain.ErrOwnEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.CheckJoin(tt.event, tt.requester)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("unpublished event", func(t *testing.T) {
		for _, s := range []domain.EventState{domain.EventPending, domain.EventCanceled} {
			ev := publishedEvent(5, 0, true)
			ev.State = s
			assert.ErrorIs(t, domain.CheckJoin(ev, 42), domain.ErrNotPublished)
		}
	})
}

func TestInitialStatus(t *testing.T) {
	tests := []struct {
		name  string
		event *domain.Event
		want  domain.RequestStatus
	}{
		{"moderation on, limited", publishedEvent(5, 0, true), domain.RequestPending},
		{"moderation off", publishedEvent(5, 0, false), domain.RequestConfirmed},
		{"unlimited bypasses moderation", publishedEvent(0, 0, true), domain.RequestConfirmed},
		{"unlimited and unmoderated", publishedEvent(0, 0, false), domain.RequestConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.InitialStatus(tt.event))
		})
	}
}

func TestCountsAgainstLedger(t *testing.T) {
	assert.True(t, domain.CountsAgainstLedger(domain.RequestConfirmed))
	assert.False(t, domain.CountsAgainstLedger(domain.RequestPending))
	assert.False(t, domain.CountsAgainstLedger(domain.RequestRejected))
	assert.False(t, domain.CountsAgainstLedger(domain.RequestCanceled))
}
