package record

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, doc string) Node {
	t.Helper()
	n, err := Parse([]byte(doc))
	require.NoError(t, err)
	return n
}

func TestCollectTextValues(t *testing.T) {
	root := mustParse(t, `{"first_name":"John","last_name":"Doe","age":25,"balance":123.45,"is_premium":true}`)

	values := slices.Collect(CollectTextValues(root))

	assert.Equal(t, []string{"John", "Doe"}, values)
}

func TestCollectTextValuesDescendsSequences(t *testing.T) {
	root := mustParse(t, `{
		"name": "Alice",
		"tags": ["vip", 3, null],
		"contacts": [{"email": "alice@example.com"}, {"phone": "555"}],
		"blob": null
	}`)

	values := slices.Collect(CollectTextValues(root))

	assert.Equal(t, []string{"alice@example.com", "555", "Alice", "vip"}, values)
}

func TestCollectTextValuesIsReenumerable(t *testing.T) {
	root := mustParse(t, `{"a":"x","b":{"c":"y"}}`)
	seq := CollectTextValues(root)

	first := slices.Collect(seq)
	second := slices.Collect(seq)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"x", "y"}, first)
}

func TestCollectTextValuesStopsEarly(t *testing.T) {
	root := mustParse(t, `{"a":"1","b":"2","c":"3"}`)

	var seen []string
	for v := range CollectTextValues(root) {
		seen = append(seen, v)
		if len(seen) == 2 {
			break
		}
	}

	assert.Equal(t, []string{"1", "2"}, seen)
}

func TestCollectTextFields(t *testing.T) {
	root := mustParse(t, `{
		"first_name": "John",
		"last_name": "Doe",
		"age": 25,
		"balance": 123.45,
		"is_premium": true,
		"address": {"address_1": "1 Main street", "city": "Manchester"},
		"orders": [{"note": "behind a sequence"}]
	}`)

	fields := map[string]string{}
	for path, value := range CollectTextFields(root) {
		fields[path.String()] = value
	}

	assert.Equal(t, map[string]string{
		"first_name":        "John",
		"last_name":         "Doe",
		"address.address_1": "1 Main street",
		"address.city":      "Manchester",
	}, fields)
}

func TestCollectTextFieldsNonMappingRoot(t *testing.T) {
	for _, root := range []Node{Text("hello"), Sequence{Text("a")}, Null{}} {
		count := 0
		for range CollectTextFields(root) {
			count++
		}
		assert.Zero(t, count, "root kind %s", root.Kind())
	}
}

func TestResolveParent(t *testing.T) {
	empty := Mapping{}
	_, ok := ResolveParent(empty, []string{""})
	assert.False(t, ok, "single empty segment must not resolve to the root")

	_, ok = ResolveParent(empty, nil)
	assert.False(t, ok)

	simple := mustParse(t, `{"first":"value1"}`)
	parent, ok := ResolveParent(simple, []string{"first"})
	require.True(t, ok)
	assert.Equal(t, simple, parent)

	twoLevels := mustParse(t, `{"first":{"second":"value2"}}`)
	parent, ok = ResolveParent(twoLevels, []string{"first", "second"})
	require.True(t, ok)
	assert.Equal(t, twoLevels.(Mapping)["first"], parent)

	threeLevels := mustParse(t, `{"first":{"second":{"third":"value3"}}}`)
	parent, ok = ResolveParent(threeLevels, []string{"first", "second", "third"})
	require.True(t, ok)
	assert.Equal(t, Text("value3"), parent["third"])

	_, ok = ResolveParent(threeLevels, []string{"not_found", "other"})
	assert.False(t, ok)

	_, ok = ResolveParent(twoLevels, []string{"first", "second", "third"})
	assert.False(t, ok, "text leaf cannot act as a parent")

	_, ok = ResolveParent(Sequence{Mapping{}}, []string{"x"})
	assert.False(t, ok)
}

func TestWriteLeaf(t *testing.T) {
	root := mustParse(t, `{"first":{"second":{"third":"value3"}}}`)

	assert.True(t, WriteLeaf(root, "first.second.third", "new value"))
	parent, ok := ResolveParent(root, ParsePath("first.second.third"))
	require.True(t, ok)
	assert.Equal(t, Text("new value"), parent["third"])

	assert.False(t, WriteLeaf(root, "first.second.nope", "new value"))
	assert.False(t, WriteLeaf(root, "first.nope.third", "new value"))
	assert.False(t, WriteLeaf(root, "", "new value"))
}

func TestWriteLeafMissingLeavesRecordUnchanged(t *testing.T) {
	doc := `{"a":{"b":{"c":"keep"}},"n":1,"list":[{"x":"y"}]}`
	root := mustParse(t, doc)
	before, err := Marshal(root)
	require.NoError(t, err)

	assert.False(t, WriteLeaf(root, "a.b.missing", "x"))

	after, err := Marshal(root)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteLeafDottedKeyIsUnaddressable(t *testing.T) {
	root := mustParse(t, `{"a.b":"value"}`)

	var paths []string
	for path := range CollectTextFields(root) {
		paths = append(paths, path.String())
	}
	require.Equal(t, []string{"a.b"}, paths)

	assert.False(t, WriteLeaf(root, paths[0], "x"))
	assert.Equal(t, Text("value"), root.(Mapping)["a.b"])
}

func TestPathAddressable(t *testing.T) {
	assert.True(t, Path{"a", "b"}.Addressable())
	assert.False(t, Path{"a.b"}.Addressable())
	assert.False(t, Path{}.Addressable())
	assert.Equal(t, Path{"a", "b"}, ParsePath(Path{"a", "b"}.String()))
}

func TestAddressingRoundTrip(t *testing.T) {
	docs := []string{
		`{"first_name":"Bob D","note":"hello"}`,
		`{"user":{"first_name":"John","last_name":"Doe","age":25},"balance":123.45,"is_premium":true}`,
		`{"a":{"b":{"c":{"d":"deep"}}},"e":["f",{"g":"h"}],"i":""}`,
	}

	for _, doc := range docs {
		root := mustParse(t, doc)
		for path, value := range CollectTextFields(root) {
			parent, ok := ResolveParent(root, path)
			require.True(t, ok, path.String())
			assert.Equal(t, Text(value), parent[path[len(path)-1]], path.String())
		}
	}
}

func TestWriteEveryFieldPreservesShape(t *testing.T) {
	root := mustParse(t, `{"user":{"name":"Jane","tags":["a","b"],"age":30},"note":"x","ok":false}`)
	original := Clone(root)

	for path := range CollectTextFields(root) {
		require.True(t, WriteLeaf(root, path.String(), "<REDACTED>"))
	}

	var before, after []string
	for path := range CollectTextFields(original) {
		before = append(before, path.String())
	}
	for path := range CollectTextFields(root) {
		after = append(after, path.String())
	}
	assert.Equal(t, before, after)

	user := root.(Mapping)["user"].(Mapping)
	assert.Equal(t, Sequence{Text("a"), Text("b")}, user["tags"])
	assert.Equal(t, Number("30"), user["age"])
	assert.Equal(t, Bool(false), root.(Mapping)["ok"])
}
