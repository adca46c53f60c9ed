package edir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveAliases(t *testing.T) {
	tests := []struct {
		name      string
		fields    Fields
		wantEntry Entry
		wantCN    string
	}{
		{
			name:      "empty",
			fields:    Fields{},
			wantEntry: Entry{},
		},
		{
			name: "all aliases",
			fields: Fields{
				"username":  "jdoe",
				"firstname": "John",
				"lastname":  "Doe",
				"email":     "jdoe@example.com",
				"password":  "secret",
			},
			wantEntry: Entry{
				"givenName":    {"John"},
				"sn":           {"Doe"},
				"mail":         {"jdoe@example.com"},
				"userPassword": {"secret"},
			},
			wantCN: "jdoe",
		},
		{
			name:      "canonical cn wins over username",
			fields:    Fields{"cn": "canonical", "username": "alias"},
			wantEntry: Entry{},
			wantCN:    "canonical",
		},
		{
			name:      "canonical match is case-insensitive",
			fields:    Fields{"MAIL": "upper@example.com", "email": "alias@example.com"},
			wantEntry: Entry{"MAIL": {"upper@example.com"}},
		},
		{
			name:      "empty values dropped",
			fields:    Fields{"email": "", "sn": "", "title": "Engineer"},
			wantEntry: Entry{"title": {"Engineer"}},
		},
		{
			name:      "empty canonical falls back to alias",
			fields:    Fields{"mail": "", "email": "alias@example.com"},
			wantEntry: Entry{"mail": {"alias@example.com"}},
		},
		{
			name:      "other attributes pass through",
			fields:    Fields{"telephoneNumber": "+44 1234", "uid": "jd"},
			wantEntry: Entry{"telephoneNumber": {"+44 1234"}, "uid": {"jd"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, cn := ResolveAliases(tt.fields)
			assert.Equal(t, tt.wantEntry, entry)
			assert.Equal(t, tt.wantCN, cn)
		})
	}
}

func TestEntryLookup(t *testing.T) {
	e := Entry{"givenName": {"John"}}

	key, ok := e.lookup("GIVENNAME")
	assert.True(t, ok)
	assert.Equal(t, "givenName", key)

	_, ok = e.lookup("sn")
	assert.False(t, ok)
}
