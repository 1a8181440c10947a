package lobby

import "sort"

// Registry holds the identities claimed during the current cycle and the
// endpoint published for it.
//
// Registry does no locking of its own: every call happens inside the
// Coordinator's critical section, so claims, clears and the session state
// change together.
type Registry struct {
	claims   map[string]struct{}
	endpoint Endpoint
}

// NewRegistry returns an empty registry with no published endpoint.
func NewRegistry() *Registry {
	return &Registry{claims: make(map[string]struct{})}
}

// Claim reserves identity. It reports false, leaving the registry unchanged,
// if the identity is already claimed.
func (r *Registry) Claim(identity string) bool {
	if _, taken := r.claims[identity]; taken {
		return false
	}
	r.claims[identity] = struct{}{}
	return true
}

// Release frees identity and reports whether it was claimed.
func (r *Registry) Release(identity string) bool {
	if _, ok := r.claims[identity]; !ok {
		return false
	}
	delete(r.claims, identity)
	return true
}

// Len returns the number of claimed identities.
func (r *Registry) Len() int {
	return len(r.claims)
}

// Identities returns the claimed identities in lexical order.
func (r *Registry) Identities() []string {
	out := make([]string, 0, len(r.claims))
	for id := range r.claims {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Publish records the endpoint of the session that has just become active.
func (r *Registry) Publish(ep Endpoint) {
	r.endpoint = ep
}

// Endpoint returns the published endpoint, zero when no session is active.
func (r *Registry) Endpoint() Endpoint {
	return r.endpoint
}

// Clear drops every claim and the published endpoint.
func (r *Registry) Clear() {
	r.claims = make(map[string]struct{})
	r.endpoint = Endpoint{}
}
