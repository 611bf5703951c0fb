package leads

// Catalog is an immutable snapshot of the attribute definitions at one schema generation.
// Mutations never touch a published Catalog; they build the next one.
type Catalog struct {
	generation uint64
	attrs      []AttributeDefinition
	byKey      map[string]int
}

func newCatalog(generation uint64, attrs []AttributeDefinition) *Catalog {
	c := &Catalog{
		generation: generation,
		attrs:      make([]AttributeDefinition, len(attrs)),
		byKey:      make(map[string]int, len(attrs)),
	}
	copy(c.attrs, attrs)
	for i, a := range c.attrs {
		c.byKey[a.Key()] = i
	}
	return c
}

// Generation is the schema version this snapshot represents.
func (c *Catalog) Generation() uint64 {
	return c.generation
}

// List returns the definitions in the order they were added.
func (c *Catalog) List() []AttributeDefinition {
	out := make([]AttributeDefinition, len(c.attrs))
	copy(out, c.attrs)
	return out
}

func (c *Catalog) Len() int {
	return len(c.attrs)
}

func (c *Catalog) Exists(name string) bool {
	_, ok := c.byKey[normalize(name)]
	return ok
}

func (c *Catalog) Lookup(name string) (AttributeDefinition, bool) {
	i, ok := c.byKey[normalize(name)]
	if !ok {
		return AttributeDefinition{}, false
	}
	return c.attrs[i], true
}

func (c *Catalog) with(def AttributeDefinition) *Catalog {
	attrs := append(c.List(), def)
	return newCatalog(c.generation+1, attrs)
}

func (c *Catalog) without(key string) *Catalog {
	attrs := make([]AttributeDefinition, 0, len(c.attrs))
	for _, a := range c.attrs {
		if a.Key() != key {
			attrs = append(attrs, a)
		}
	}
	return newCatalog(c.generation+1, attrs)
}
