package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/settle"
	"gopkg.in/yaml.v3"
)

// yamlBatch is the YAML document layout:
//
//	records:
//	  - spent: {who: Alice, amount: 500}
//	  - gave: {from: Dexter, amount: 2000, to: Harry}
type yamlBatch struct {
	Records []yamlRecord `yaml:"records"`
}

type yamlRecord struct {
	Spent *struct {
		Who    string     `yaml:"who"`
		Amount yamlAmount `yaml:"amount"`
	} `yaml:"spent"`
	Gave *struct {
		From   string     `yaml:"from"`
		Amount yamlAmount `yaml:"amount"`
		To     string     `yaml:"to"`
	} `yaml:"gave"`
}

// yamlAmount accepts both numbers and strings such as "¥1,200".
type yamlAmount struct {
	decimal.Decimal
}

func (a *yamlAmount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", node.Line)
	}
	d, err := ParseAmount(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	a.Decimal = d
	return nil
}

// ParseYAML reads a YAML batch.
func ParseYAML(r io.Reader) ([]settle.Record, error) {
	var doc yamlBatch
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}
	batch := make([]settle.Record, 0, len(doc.Records))
	for i, rec := range doc.Records {
		switch {
		case rec.Spent != nil && rec.Gave != nil:
			return nil, fmt.Errorf("record %d: both spent and gave set", i+1)
		case rec.Spent != nil:
			batch = append(batch, settle.Spent(rec.Spent.Who, rec.Spent.Amount.Decimal))
		case rec.Gave != nil:
			batch = append(batch, settle.Gave(rec.Gave.From, rec.Gave.Amount.Decimal, rec.Gave.To))
		default:
			return nil, fmt.Errorf("record %d: expected spent or gave", i+1)
		}
	}
	return batch, nil
}
