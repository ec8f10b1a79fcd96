package section

import "fmt"

// Registry holds one renderer per section.
type Registry struct {
	renderers map[ID]Renderer
}

// NewRegistry returns a registry of the built-in renderers, with any
// overrides replacing the renderer for their section.
func NewRegistry(overrides ...Renderer) (*Registry, error) {
	if _, err := TopoOrder(definitions); err != nil {
		return nil, err
	}
	r := &Registry{renderers: map[ID]Renderer{}}
	builtin := []Renderer{
		CaseInfoRenderer{}, CoverRenderer{}, SubjectRenderer{}, SurveillanceRenderer{},
		SessionsRenderer{}, DocumentsRenderer{}, BillingRenderer{}, ConclusionRenderer{},
		MediaRenderer{}, CustodyRenderer{}, DisclosureRenderer{}, TOCRenderer{},
	}
	for _, rn := range append(builtin, overrides...) {
		if _, ok := Lookup(rn.ID()); !ok {
			return nil, fmt.Errorf("%w: renderer for %q", ErrUnknownSection, rn.ID())
		}
		r.renderers[rn.ID()] = rn
	}
	return r, nil
}

// Get returns the renderer for id.
func (r *Registry) Get(id ID) (Renderer, error) {
	rn, ok := r.renderers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, id)
	}
	return rn, nil
}

// Renderers returns every renderer in pipeline order.
func (r *Registry) Renderers() []Renderer {
	out := make([]Renderer, 0, len(r.renderers))
	for _, id := range IDs() {
		if rn, ok := r.renderers[id]; ok {
			out = append(out, rn)
		}
	}
	return out
}
