package impl

import (
	"errors"
	"testing"

	"github.com/ragdock/models"
	"github.com/ragdock/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func makeDoc(level models.AccessLevel, opts ...func(*models.Document)) *models.Document {
	doc := &models.Document{
		Slug:        "handbook",
		Title:       "Handbook",
		OwnerSlug:   strPtr("acme"),
		AccessLevel: level,
		Active:      true,
	}
	for _, opt := range opts {
		opt(doc)
	}
	return doc
}

func withPasscode(code string) func(*models.Document) {
	return func(d *models.Document) { d.Passcode = &code }
}

func withInactive() func(*models.Document) {
	return func(d *models.Document) { d.Active = false }
}

func TestCheckAccessRules(t *testing.T) {
	svc := NewAccessService()

	anonymous := (*models.User)(nil)
	registered := &models.User{ID: "u1"}
	member := &models.User{ID: "u2", MemberOwners: []string{"acme"}}
	admin := &models.User{ID: "u3", AdminOwners: []string{"acme"}}
	otherAdmin := &models.User{ID: "u4", AdminOwners: []string{"globex"}}
	superAdmin := &models.User{ID: "u5", SuperAdmin: true}

	tests := []struct {
		name       string
		doc        *models.Document
		user       *models.User
		passcode   string
		wantReason services.DenyReason // empty means allowed
	}{
		{"public allows anonymous", makeDoc(models.AccessPublic), anonymous, "", ""},
		{"public allows registered", makeDoc(models.AccessPublic), registered, "", ""},

		{"inactive denies anonymous", makeDoc(models.AccessPublic, withInactive()), anonymous, "", services.DenyInactive},
		{"inactive denies registered", makeDoc(models.AccessPublic, withInactive()), registered, "", services.DenyInactive},
		{"inactive denies owner admin", makeDoc(models.AccessPublic, withInactive()), admin, "", services.DenyInactive},
		{"inactive denies other owner admin", makeDoc(models.AccessPublic, withInactive()), otherAdmin, "", services.DenyInactive},
		{"inactive denies super admin", makeDoc(models.AccessPublic, withInactive()), superAdmin, "", services.DenyInactive},

		{"passcode correct", makeDoc(models.AccessPasscode, withPasscode("open-sesame")), anonymous, "open-sesame", ""},
		{"passcode wrong", makeDoc(models.AccessPasscode, withPasscode("open-sesame")), anonymous, "wrong", services.DenyPasscode},
		{"passcode missing", makeDoc(models.AccessPasscode, withPasscode("open-sesame")), registered, "", services.DenyPasscode},
		{"passcode unset on doc denies", makeDoc(models.AccessPasscode), anonymous, "anything", services.DenyPasscode},
		{"passcode required of owner admin", makeDoc(models.AccessPasscode, withPasscode("open-sesame")), admin, "", services.DenyPasscode},
		{"passcode bypassed by super admin", makeDoc(models.AccessPasscode, withPasscode("open-sesame")), superAdmin, "", ""},

		{"registered denies anonymous", makeDoc(models.AccessRegistered), anonymous, "", services.DenyRegistered},
		{"registered allows any user", makeDoc(models.AccessRegistered), registered, "", ""},

		{"owner restricted denies anonymous", makeDoc(models.AccessOwnerRestricted), anonymous, "", services.DenyRegistered},
		{"owner restricted denies non-member", makeDoc(models.AccessOwnerRestricted), registered, "", services.DenyForbidden},
		{"owner restricted allows member", makeDoc(models.AccessOwnerRestricted), member, "", ""},
		{"owner restricted allows admin", makeDoc(models.AccessOwnerRestricted), admin, "", ""},
		{"owner restricted allows super admin", makeDoc(models.AccessOwnerRestricted), superAdmin, "", ""},

		{"admin only denies anonymous", makeDoc(models.AccessOwnerAdminOnly), anonymous, "", services.DenyForbidden},
		{"admin only denies member", makeDoc(models.AccessOwnerAdminOnly), member, "", services.DenyForbidden},
		{"admin only allows owner admin", makeDoc(models.AccessOwnerAdminOnly), admin, "", ""},
		{"admin only denies other owner admin", makeDoc(models.AccessOwnerAdminOnly), otherAdmin, "", services.DenyForbidden},
		{"admin only allows super admin", makeDoc(models.AccessOwnerAdminOnly), superAdmin, "", ""},

		{"unknown level fails closed", makeDoc(models.AccessLevel("mystery")), registered, "", services.DenyForbidden},
		{"unknown level still allows super admin", makeDoc(models.AccessLevel("mystery")), superAdmin, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckAccess(tt.user, tt.doc, tt.passcode)

			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}

			var denied *services.AccessDeniedError
			require.Error(t, err)
			require.True(t, errors.As(err, &denied), "expected AccessDeniedError, got %v", err)
			assert.Equal(t, tt.wantReason, denied.Reason)
			assert.Equal(t, tt.doc.Slug, denied.DocumentSlug)
		})
	}
}

func TestCheckAccessUnknownLevelDeniesRegularUser(t *testing.T) {
	svc := NewAccessService()
	doc := makeDoc(models.AccessLevel("mystery"))

	err := svc.CheckAccess(&models.User{ID: "u1"}, doc, "")
	var denied *services.AccessDeniedError
	require.Error(t, err)
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, services.DenyForbidden, denied.Reason)
}
