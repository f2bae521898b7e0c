package models

// BridgeStatus is one bridge as reported by the upstream status page.
// Name keeps the upstream label, e.g. "Lakeshore Rd. (Bridge 1)"; Status is free text.
type BridgeStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Source is one upstream status page and the key it is served under.
type Source struct {
	Key string `json:"key" yaml:"key"`
	URL string `json:"url" yaml:"url"`
}

// Default source keys.
const (
	SourceNiagara      = "niagara"
	SourcePortColborne = "portcolborne"
)

// DefaultSources returns the two Seaway bridge status pages in feed order.
func DefaultSources() []Source {
	return []Source{
		{Key: SourceNiagara, URL: "https://seaway-greatlakes.com/bridgestatus/detailsnai?key=BridgeSCT"},
		{Key: SourcePortColborne, URL: "https://seaway-greatlakes.com/bridgestatus/detailsnai?key=BridgePC"},
	}
}
