// Package facility is the registry of facilities, the controllers installed
// in them and the users who own them.
//
// Owner and controller membership have set semantics: adding a member twice
// or removing an absent one leaves the set unchanged and is not an error.
// Ownership of a facility grants read access to every controller it lists;
// see auth.Authorizer for how the registry is consulted.
package facility
