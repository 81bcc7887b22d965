package questionset

import (
	"github.com/rs/zerolog"

	"github.com/abhisek/examrun/internal/module"
	"github.com/abhisek/examrun/internal/session"
)

// NewRegistry maps every profile's type tag to a Set factory. A nil profiles
// map uses DefaultProfiles.
func NewRegistry(loader Loader, log zerolog.Logger, profiles map[string]Profile) session.Registry {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	reg := make(session.Registry, len(profiles))
	for typ, p := range profiles {
		reg[typ] = func(spec module.ComponentSpec, host session.Host, opts session.Options) (session.Component, error) {
			return NewSet(spec, host, opts, p, loader, log), nil
		}
	}
	return reg
}
