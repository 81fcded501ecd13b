// Package actor carries the already-authenticated caller identity handed to the engine by the gateway.
package actor

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RoleGuest        Role = "guest"
	RolePatient      Role = "patient"
	RoleReceptionist Role = "receptionist"
	RoleDoctor       Role = "doctor"
	RoleAdmin        Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RolePatient, RoleReceptionist, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Actor is the caller of an operation.
type Actor struct {
	ID        uuid.UUID
	Role      Role
	PatientID *uuid.UUID // set when Role is patient
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleReceptionist || a.Role == RoleDoctor || a.Role == RoleAdmin
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// OwnsPatient reports whether a patient actor is acting on their own record.
func (a Actor) OwnsPatient(patientID uuid.UUID) bool {
	return a.Role == RolePatient && a.PatientID != nil && *a.PatientID == patientID
}

// Ref returns a pointer to the actor id, or nil for anonymous guests.
func (a Actor) Ref() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

func Guest() Actor { return Actor{Role: RoleGuest} }

type contextKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext returns the actor set by the auth middleware, or a guest.
func FromContext(ctx context.Context) Actor {
	if a, ok := ctx.Value(contextKey{}).(Actor); ok {
		return a
	}
	return Guest()
}
