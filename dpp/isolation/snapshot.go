package isolation

import (
	"fmt"
	"time"

	"github.com/blockberries/drive/dpp"
)

// Bundle is a component preloaded into a Snapshot.
type Bundle interface {
	bundleName() string
}

// DataProviderBundle adapts the in-context proxy into the data provider
// the engine is built with.
type DataProviderBundle struct {
	Name string
	Wrap func(proxy dpp.DataProvider) dpp.DataProvider
}

// EngineBundle builds the protocol engine inside an isolate.
type EngineBundle struct {
	Name string
	New  func(provider dpp.DataProvider) dpp.Protocol
}

// TimeoutShimBundle supplies the clock the in-context deadline checks
// read.
type TimeoutShimBundle struct {
	Name  string
	Clock func() time.Time
}

func (b DataProviderBundle) bundleName() string { return b.Name }
func (b EngineBundle) bundleName() string       { return b.Name }
func (b TimeoutShimBundle) bundleName() string  { return b.Name }

// Snapshot is the immutable image every isolate is instantiated from.
// It is safe to share between any number of sessions.
type Snapshot struct {
	dataProvider DataProviderBundle
	engine       EngineBundle
	timeoutShim  TimeoutShimBundle
	names        []string
}

// CreateSnapshot compiles bundles into a Snapshot. Exactly one bundle of
// each kind is required.
func CreateSnapshot(bundles ...Bundle) (*Snapshot, error) {
	s := &Snapshot{}
	var haveProvider, haveEngine, haveShim bool
	for _, b := range bundles {
		switch b := b.(type) {
		case DataProviderBundle:
			if haveProvider {
				return nil, fmt.Errorf("duplicate data provider bundle %q", b.Name)
			}
			if b.Wrap == nil {
				return nil, fmt.Errorf("data provider bundle %q has no Wrap function", b.Name)
			}
			s.dataProvider, haveProvider = b, true
		case EngineBundle:
			if haveEngine {
				return nil, fmt.Errorf("duplicate engine bundle %q", b.Name)
			}
			if b.New == nil {
				return nil, fmt.Errorf("engine bundle %q has no New function", b.Name)
			}
			s.engine, haveEngine = b, true
		case TimeoutShimBundle:
			if haveShim {
				return nil, fmt.Errorf("duplicate timeout shim bundle %q", b.Name)
			}
			if b.Clock == nil {
				return nil, fmt.Errorf("timeout shim bundle %q has no clock", b.Name)
			}
			s.timeoutShim, haveShim = b, true
		default:
			return nil, fmt.Errorf("unsupported bundle %T", b)
		}
		s.names = append(s.names, b.bundleName())
	}
	switch {
	case !haveProvider:
		return nil, fmt.Errorf("snapshot requires a data provider bundle")
	case !haveEngine:
		return nil, fmt.Errorf("snapshot requires an engine bundle")
	case !haveShim:
		return nil, fmt.Errorf("snapshot requires a timeout shim bundle")
	}
	return s, nil
}

// Bundles returns the names of the bundles in load order.
func (s *Snapshot) Bundles() []string {
	return append([]string(nil), s.names...)
}

// DefaultBundles returns the proxy pass-through provider, the reference
// engine with a shared schema validator, and a wall-clock timeout shim.
func DefaultBundles() []Bundle {
	schema := dpp.NewSchemaValidator()
	return []Bundle{
		DataProviderBundle{
			Name: "dataProvider",
			Wrap: func(proxy dpp.DataProvider) dpp.DataProvider { return proxy },
		},
		EngineBundle{
			Name: "dpp",
			New: func(provider dpp.DataProvider) dpp.Protocol {
				return dpp.New(provider, dpp.WithSchemaValidator(schema))
			},
		},
		TimeoutShimBundle{
			Name:  "timeoutShim",
			Clock: time.Now,
		},
	}
}
