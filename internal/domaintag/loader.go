package domaintag

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vasic-digital/memcore/internal/memcore/errs"
)

// keywordFile is the on-disk shape of an operator-supplied keyword map
// override, one list of keywords per criterion name.
type keywordFile struct {
	Criteria map[string][]string `yaml:"criteria"`
}

// LoadCriteriaOverrides reads a YAML file of the form
//
//	criteria:
//	  eb1a_awards: [award, prize, ...]
//	  my_custom_criterion: [foo, bar]
//
// and merges it into Criteria: existing criteria get their keyword list
// replaced, new criterion names are added. This lets an operator extend or
// retune the built-in EB-1A keyword map (DOMAIN_TAG_CRITERIA_FILE) without a
// rebuild, following the reference config package's pattern of YAML-backed,
// environment-variable-selected override files.
func LoadCriteriaOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Config("domaintag: read criteria override file %s: %v", path, err)
	}

	var parsed keywordFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return errs.Config("domaintag: parse criteria override file %s: %v", path, err)
	}
	if len(parsed.Criteria) == 0 {
		return errs.Validation("domaintag: criteria override file %s has no criteria", path)
	}

	patternMu.Lock()
	patterns = nil // force recompilation against the new keyword set
	patternMu.Unlock()

	for criterion, keywords := range parsed.Criteria {
		if len(keywords) == 0 {
			return errs.Validation("domaintag: criterion %q has no keywords", criterion)
		}
		Criteria[criterion] = keywords
	}
	return nil
}
