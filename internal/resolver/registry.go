package resolver

// Resolver names, also the values accepted by the settings
// disabled-resolvers list.
const (
	NameMedia     = "media"
	NameUser      = "user"
	NameTokens    = "tokens"
	NameEmbedding = "embedding"
	NameAvatar    = "avatar"
)

// Registry holds the resolver set in registration order.
type Registry struct {
	resolvers []Resolver
}

// NewRegistry creates a registry over the given resolvers.
func NewRegistry(resolvers ...Resolver) *Registry {
	return &Registry{resolvers: resolvers}
}

// Select returns the resolvers enabled for one batch: account-level
// disables apply first, then the batch's skip flags.
func (r *Registry) Select(disabled map[string]bool, opts Options) []Resolver {
	var out []Resolver
	for _, res := range r.resolvers {
		name := res.Name()
		if disabled[name] {
			continue
		}
		switch name {
		case NameMedia:
			if opts.SkipMedia {
				continue
			}
		case NameTokens:
			if opts.SkipTokens {
				continue
			}
		case NameEmbedding:
			if opts.SkipEmbedding {
				continue
			}
		}
		out = append(out, res)
	}
	return out
}
