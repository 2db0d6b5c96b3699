package observation

import "github.com/lenstools/metacal/pkg/errors"

// ObsList is an ordered collection of observations of a single object in a
// single band, e.g. one per exposure
type ObsList struct {
	obs  []*Observation
	meta map[string]interface{}
}

// NewObsList creates an empty ObsList
func NewObsList() *ObsList {
	return &ObsList{meta: map[string]interface{}{}}
}

// Append adds an observation to the list
func (l *ObsList) Append(obs *Observation) error {
	if obs == nil {
		return errors.New(errors.ErrInvalidInput, "cannot append nil observation")
	}
	l.obs = append(l.obs, obs)
	return nil
}

// Len returns the number of observations
func (l *ObsList) Len() int { return len(l.obs) }

// At returns the observation at index i
func (l *ObsList) At(i int) *Observation { return l.obs[i] }

// Meta returns the list-level metadata map
func (l *ObsList) Meta() map[string]interface{} { return l.meta }

// MultiBandObsList holds one ObsList per band
type MultiBandObsList struct {
	lists []*ObsList
	meta  map[string]interface{}
}

// NewMultiBandObsList creates an empty MultiBandObsList
func NewMultiBandObsList() *MultiBandObsList {
	return &MultiBandObsList{meta: map[string]interface{}{}}
}

// Append adds a band's observation list
func (m *MultiBandObsList) Append(l *ObsList) error {
	if l == nil {
		return errors.New(errors.ErrInvalidInput, "cannot append nil obs list")
	}
	m.lists = append(m.lists, l)
	return nil
}

// Len returns the number of bands
func (m *MultiBandObsList) Len() int { return len(m.lists) }

// Band returns the observation list for band i
func (m *MultiBandObsList) Band(i int) *ObsList { return m.lists[i] }

// Meta returns the multi-band metadata map
func (m *MultiBandObsList) Meta() map[string]interface{} { return m.meta }
