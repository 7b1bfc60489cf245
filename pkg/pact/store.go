package pact

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

// Load reads and parses the pact document at path.
func Load(path string) (*Pact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read pact file %s", path)
	}
	return parseDocument(data, path)
}

// Save writes the pact to path in canonical form. When a document for the
// same consumer/provider pair already exists there, the two are merged:
// interactions sharing an identity key are replaced with the new version
// in their existing position, untouched interactions keep their original
// bytes, and new interactions are appended in the order encountered.
// Fields of the existing document this model does not understand survive
// the merge.
func Save(p *Pact, path string) error {
	if err := p.validate(); err != nil {
		return errors.Wrap(err, "refusing to save invalid pact")
	}

	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data, err := Marshal(p)
		if err != nil {
			return err
		}
		return writeFile(path, data)
	}
	if err != nil {
		return errors.Wrapf(err, "unable to read existing pact file %s", path)
	}

	merged, err := merge(p, existing, path)
	if err != nil {
		return err
	}
	return writeFile(path, merged)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "unable to create pact directory %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "unable to write pact file %s", path)
	}
	log.WithField("file", path).Debug("Pact file written")
	return nil
}

func merge(p *Pact, existing []byte, source string) ([]byte, error) {
	current, err := parseDocument(existing, source)
	if err != nil {
		return nil, errors.Wrap(err, "unable to merge into existing pact file")
	}
	if current.Consumer != p.Consumer || current.Provider != p.Provider {
		return nil, errors.Errorf("pact file %s records %s/%s, refusing to merge %s/%s into it",
			source, current.Consumer, current.Provider, p.Consumer, p.Provider)
	}

	incoming := make(map[uint64]*Interaction, len(p.Interactions))
	for _, i := range p.Interactions {
		incoming[i.Key()] = i
	}

	replaced := map[uint64]bool{}
	merged := make([]json.RawMessage, 0, len(current.Interactions)+len(p.Interactions))
	for _, kept := range current.Interactions {
		key := kept.Key()
		replacement, ok := incoming[key]
		if !ok {
			merged = append(merged, json.RawMessage(kept.raw))
			continue
		}
		raw, err := marshalInteraction(replacement)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to serialize interaction %q", replacement.Description)
		}
		merged = append(merged, raw)
		replaced[key] = true
	}
	for _, i := range p.Interactions {
		if replaced[i.Key()] {
			continue
		}
		raw, err := marshalInteraction(i)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to serialize interaction %q", i.Description)
		}
		merged = append(merged, raw)
	}

	array, err := marshalCompact(merged)
	if err != nil {
		return nil, errors.Wrap(err, "unable to serialize merged interactions")
	}
	out, err := sjson.SetRawBytes(existing, "interactions", array)
	if err != nil {
		return nil, errors.Wrap(err, "unable to graft merged interactions")
	}
	return indentDocument(out)
}
