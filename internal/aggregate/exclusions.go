package aggregate

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ownership-cli/internal/quarter"
)

// Exclusion removes a security from its company's market cap from a quarter
// onwards, e.g. a dual listing that stopped being a separate share class.
type Exclusion struct {
	SecurityID string          `yaml:"security_id"`
	From       quarter.Quarter `yaml:"from_quarter"`
	Reason     string          `yaml:"reason,omitempty"`
}

// Exclusions is a set of market cap exclusions keyed by security.
type Exclusions map[string]quarter.Quarter

// Excluded reports whether a security is excluded at quarter q.
func (e Exclusions) Excluded(securityID string, q quarter.Quarter) bool {
	from, ok := e[securityID]
	return ok && q >= from
}

// LoadExclusions reads an exclusions file:
//
//	exclusions:
//	  - security_id: DXVFL5-S
//	    from_quarter: 201512
//	    reason: unified share class
//
// An empty path yields no exclusions.
func LoadExclusions(path string) (Exclusions, error) {
	if path == "" {
		return Exclusions{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: read exclusions %s", path)
	}
	return ParseExclusions(data)
}

// ParseExclusions decodes the YAML exclusions document.
func ParseExclusions(data []byte) (Exclusions, error) {
	var doc struct {
		Exclusions []Exclusion `yaml:"exclusions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "aggregate: parse exclusions")
	}

	out := make(Exclusions, len(doc.Exclusions))
	for i, e := range doc.Exclusions {
		if e.SecurityID == "" {
			return nil, eris.Errorf("aggregate: exclusion %d has no security_id", i)
		}
		if !e.From.Valid() {
			return nil, eris.Errorf("aggregate: exclusion %s has invalid from_quarter %d", e.SecurityID, e.From)
		}
		out[e.SecurityID] = e.From
	}
	return out, nil
}
