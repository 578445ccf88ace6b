package collection

import "github.com/mrlokans/shelfscan/internal/entities"

// ChangeKind describes what happened to the mirror.
type ChangeKind string

const (
	ChangeUpserted ChangeKind = "upserted"
	ChangeRemoved  ChangeKind = "removed"
	ChangeRestored ChangeKind = "restored"
	ChangeReloaded ChangeKind = "reloaded"
	ChangeTags     ChangeKind = "tags"
)

// Change is one event delivered to subscribers. Restored changes carry the
// error that caused the rollback.
type Change struct {
	Kind ChangeKind
	Book entities.Book
	Err  error
}

// Subscribe returns a channel of changes and a function to stop receiving
// them. Slow subscribers miss events rather than stall the owner.
func (c *Cache) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)
	var id int
	if err := c.exec(func() {
		id = c.nextSub
		c.nextSub++
		c.subs[id] = ch
	}); err != nil {
		close(ch)
		return ch, func() {}
	}

	return ch, func() {
		_ = c.exec(func() {
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// emit delivers change to every subscriber without blocking. Owner-only.
func (c *Cache) emit(change Change) {
	for id, sub := range c.subs {
		select {
		case sub <- change:
		default:
			c.logger.Warn("subscriber channel full, dropping change",
				"subscriber", id, "kind", change.Kind)
		}
	}
}

func (c *Cache) closeSubscribers() {
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub)
	}
}
