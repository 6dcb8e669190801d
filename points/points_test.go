package points

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := map[string]Category{
		"104_load":                   CategoryShelfLoad,
		"104_load_docking":           CategoryShelfDocking,
		"pick-up_load":               CategoryPickup,
		"pick-up-a2_load_docking":    CategoryPickupDocking,
		"drop-off_load":              CategoryDropoff,
		"drop-off_east_load_docking": CategoryDropoffDocking,
		"charger":                    CategoryCharger,
		"charger_2":                  CategoryCharger,
		"":                           CategoryUnknown,
		"104":                        CategoryUnknown,
		"abc_load":                   CategoryUnknown,
		"104_load_docking_docking":   CategoryUnknown,
		"104_LOAD":                   CategoryUnknown,
		"pickup_load":                CategoryUnknown,
	}
	for id, want := range cases {
		assert.Equal(t, want, Classify(id), "Classify(%q)", id)
	}
}

func TestShelfScenario(t *testing.T) {
	assert.Equal(t, CategoryShelfLoad, Classify("104_load"))
	floor, ok := Floor("104_load")
	require.True(t, ok)
	assert.Equal(t, 1, floor)

	assert.Equal(t, CategoryShelfDocking, Classify("104_load_docking"))
	assert.Equal(t, "104_load", ToBase("104_load_docking"))
}

func TestFloor(t *testing.T) {
	cases := map[string]int{
		"104_load":         1,
		"215_load_docking": 2,
		"1203_load":        12,
		"7_load":           7,
		"31_load":          3,
	}
	for id, want := range cases {
		got, ok := Floor(id)
		require.True(t, ok, id)
		assert.Equal(t, want, got, id)
	}

	_, ok := Floor("pick-up_load")
	assert.False(t, ok)
	_, ok = Floor("charger")
	assert.False(t, ok)
}

func TestToDockingIdempotent(t *testing.T) {
	for n := 0; n < 1000; n += 7 {
		id := fmt.Sprintf("%d_load", n)
		once := ToDocking(id)
		assert.Equal(t, once, ToDocking(once), id)
		assert.Equal(t, id+"_docking", once)
		assert.Equal(t, id, ToBase(once))
	}
	assert.Equal(t, "charger", ToDocking("charger"))
}

func TestValidGrammarNeverUnknown(t *testing.T) {
	valid := []string{"1_load", "999_load_docking", "pick-up_load", "pick-upx_load_docking",
		"drop-off_load", "drop-off-9_load_docking", "charger", "charger-north"}
	for _, id := range valid {
		assert.NotEqual(t, CategoryUnknown, Classify(id), id)
		assert.Empty(t, Validate(id), id)
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	v := Validate("Shelf 1_docking_docking")
	assert.Contains(t, v, "point id contains whitespace")
	assert.Contains(t, v, "point id contains uppercase characters")
	assert.Contains(t, v, "point id repeats the _docking suffix")
	assert.Contains(t, v, "docking point id must end in _load_docking")
	assert.Contains(t, v, "point id does not match any known point pattern")

	assert.Equal(t, []string{"point id is empty"}, Validate(""))
	assert.Contains(t, Validate("104_load!"), "point id contains characters outside [a-z0-9_-]")
}

func TestGroupByFloor(t *testing.T) {
	groups, rest := GroupByFloor([]string{"204_load", "101_load", "102_load_docking", "charger", "pick-up_load"})
	assert.Equal(t, []string{"101_load", "102_load_docking"}, groups[1])
	assert.Equal(t, []string{"204_load"}, groups[2])
	assert.Equal(t, []string{"charger", "pick-up_load"}, rest)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(
		Point{ID: "104_load", X: 1, Y: 2},
		Point{ID: "charger", X: -1, Y: 0, Theta: 3.14},
	)
	p, ok := c.Lookup("104_load")
	require.True(t, ok)
	assert.Equal(t, CategoryShelfLoad, p.Category)
	assert.Equal(t, 2.0, p.Y)

	ch, ok := c.FirstOf(CategoryCharger)
	require.True(t, ok)
	assert.Equal(t, "charger", ch.ID)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	assert.True(t, c.Delete("charger"))
	assert.False(t, c.Delete("charger"))
	_, ok = c.FirstOf(CategoryCharger)
	assert.False(t, ok)
}
