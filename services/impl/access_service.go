package impl

import (
	"crypto/subtle"

	"github.com/ragdock/models"
	"github.com/ragdock/services"
)

type accessServiceImpl struct{}

func NewAccessService() services.AccessService {
	return &accessServiceImpl{}
}

// CheckAccess applies the permission rules in order, first match wins.
// Inactive documents deny everyone, super admins included; super admins
// then pass every remaining gate; each level after that demands
// progressively more of the caller.
func (s *accessServiceImpl) CheckAccess(user *models.User, doc *models.Document, passcode string) error {
	ownerSlug := ""
	if doc.OwnerSlug != nil {
		ownerSlug = *doc.OwnerSlug
	}

	if !doc.Active {
		return &services.AccessDeniedError{DocumentSlug: doc.Slug, Reason: services.DenyInactive}
	}

	if user != nil && user.SuperAdmin {
		return nil
	}

	switch doc.AccessLevel {
	case models.AccessPublic:
		return nil

	case models.AccessPasscode:
		expected := ""
		if doc.Passcode != nil {
			expected = *doc.Passcode
		}
		if expected == "" || subtle.ConstantTimeCompare([]byte(passcode), []byte(expected)) != 1 {
			return &services.AccessDeniedError{DocumentSlug: doc.Slug, Reason: services.DenyPasscode}
		}
		return nil

	case models.AccessRegistered:
		if user == nil || user.ID == "" {
			return &services.AccessDeniedError{DocumentSlug: doc.Slug, Reason: services.DenyRegistered}
		}
		return nil

	case models.AccessOwnerRestricted:
		if user == nil || user.ID == "" {
			return &services.AccessDeniedError{DocumentSlug: doc.Slug, Reason: services.DenyRegistered}
		}
		if !user.IsOwnerMember(ownerSlug) {
			return &services.AccessDeniedError{DocumentSlug: doc.Slug, Reason: services.DenyForbidden}
		}
		return nil

	case models.AccessOwnerAdminOnly:
		if !user.IsOwnerAdmin(ownerSlug) {
			return &services.AccessDeniedError{DocumentSlug: doc.Slug, Reason: services.DenyForbidden}
		}
		return nil

	default:
		// Unknown levels fail closed
		return &services.AccessDeniedError{DocumentSlug: doc.Slug, Reason: services.DenyForbidden}
	}
}
