package inference

type RequestOptions struct {
	Text string

	Steps       *int
	Seed        *int64
	Temperature *float64
	TopK        *int
	Greedy      *bool
	Sanitize    *bool
}

// GenDefaults are per-model generation defaults taken from the manifest.
type GenDefaults struct {
	Temperature *float64
	Steps       *int
	TopK        *int
}

const (
	DefaultSteps       = 20
	DefaultTemperature = 1.0
)

// ResolveRequest layers explicit options over model defaults over the
// built-in defaults.
func ResolveRequest(opts RequestOptions, defaults GenDefaults) Request {
	req := Request{
		Text:        opts.Text,
		Steps:       DefaultSteps,
		Seed:        -1,
		Temperature: DefaultTemperature,
	}

	if defaults.Temperature != nil && *defaults.Temperature > 0 {
		req.Temperature = *defaults.Temperature
	}
	if defaults.Steps != nil && *defaults.Steps >= 0 {
		req.Steps = *defaults.Steps
	}
	if defaults.TopK != nil && *defaults.TopK > 0 {
		req.TopK = *defaults.TopK
	}

	if opts.Steps != nil {
		req.Steps = *opts.Steps
	}
	if opts.Seed != nil {
		req.Seed = *opts.Seed
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopK != nil {
		req.TopK = *opts.TopK
	}
	if opts.Greedy != nil {
		req.Greedy = *opts.Greedy
	}
	if opts.Sanitize != nil {
		req.Sanitize = *opts.Sanitize
	}

	return req
}
