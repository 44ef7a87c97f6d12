// Package ilthermotypes persists ILThermo data sets.
package ilthermotypes

import (
	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/ilthermo"
)

var DatasetID = uuid.MustParse("5d032ec2-31e3-41ae-bd59-baede55af1cd")

func stringList(name string, field func(*ilthermo.Dataset) *[]string) helper.Field[ilthermo.Dataset] {
	return helper.Plain(name,
		func(d *ilthermo.Dataset) any { return *field(d) },
		func(d *ilthermo.Dataset, v any) (err error) {
			*field(d), err = state.AsStrings(v)
			return err
		})
}

// NewDatasetHelper returns the field helper for *ilthermo.Dataset.
func NewDatasetHelper() *helper.Fields[ilthermo.Dataset] {
	return helper.NewFields(
		helper.Descriptor{Name: "ilthermo.Dataset", ID: DatasetID},
		helper.Plain("setid",
			func(d *ilthermo.Dataset) any { return d.SetID },
			func(d *ilthermo.Dataset, v any) (err error) {
				d.SetID, err = state.AsString(v)
				return err
			}),
		helper.Plain("setDict",
			func(d *ilthermo.Dataset) any { return d.SetDict },
			func(d *ilthermo.Dataset, v any) (err error) {
				if v == nil {
					d.SetDict = nil
					return nil
				}
				d.SetDict, err = state.AsMap(v)
				return err
			}),
		helper.Plain("data",
			func(d *ilthermo.Dataset) any { return d.Data },
			func(d *ilthermo.Dataset, v any) (err error) {
				d.Data, err = state.AsFloatMatrix(v)
				return err
			}),
		stringList("headerList", func(d *ilthermo.Dataset) *[]string { return &d.HeaderList }),
		stringList("physProps", func(d *ilthermo.Dataset) *[]string { return &d.PhysProps }),
		stringList("physUnits", func(d *ilthermo.Dataset) *[]string { return &d.PhysUnits }),
		stringList("phases", func(d *ilthermo.Dataset) *[]string { return &d.Phases }),
	)
}

// Types returns the helpers of this package.
func Types() []helper.Helper {
	return []helper.Helper{NewDatasetHelper()}
}
