package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameBook(t *testing.T) {
	tests := []struct {
		name string
		a, b Book
		want bool
	}{
		{"same server id", Book{ID: "42", ISBN13: "1"}, Book{ID: "42", ISBN13: "2"}, true},
		{"different server id same isbn", Book{ID: "1", ISBN13: "9780134190440"}, Book{ID: "2", ISBN13: "9780134190440"}, false},
		{"one side without id falls back to isbn", Book{ID: "1", ISBN13: "9780134190440"}, Book{ISBN13: "9780134190440"}, true},
		{"both without id same isbn", Book{ISBN13: "9780134190440"}, Book{ISBN13: "9780134190440"}, true},
		{"both without id and isbn", Book{}, Book{}, false},
		{"no id different isbn", Book{ISBN13: "9780134190440"}, Book{ISBN13: "9780306406157"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameBook(tt.a, tt.b))
			assert.Equal(t, tt.want, SameBook(tt.b, tt.a))
		})
	}
}

func TestBookKey(t *testing.T) {
	assert.Equal(t, "id:42", Book{ID: "42", ISBN13: "9780134190440"}.Key())
	assert.Equal(t, "isbn:9780134190440", Book{ISBN13: "9780134190440"}.Key())
}

func TestBookClone(t *testing.T) {
	b := Book{ID: "1", Tags: []Tag{{ID: "t1", Name: "x"}}}
	c := b.Clone()
	c.Tags[0].Name = "changed"
	assert.Equal(t, "x", b.Tags[0].Name)
}

func TestFindTagByName(t *testing.T) {
	tags := []Tag{{ID: "1", Name: "Fiction"}, {ID: "2", Name: "to-read"}}

	tag, ok := FindTagByName(tags, "fiction")
	assert.True(t, ok)
	assert.Equal(t, "1", tag.ID)

	_, ok = FindTagByName(tags, "poetry")
	assert.False(t, ok)
}

func TestSessionNeverPrintsToken(t *testing.T) {
	s := Session{Token: "eyJhbGciOiJIUzI1NiJ9.secret-part.signature", Email: "a@b.c"}
	assert.NotContains(t, s.String(), "secret-part")
	assert.Contains(t, s.String(), "****ture")
	assert.Equal(t, "****", MaskToken("short"))
	assert.Equal(t, "", MaskToken(""))
}
