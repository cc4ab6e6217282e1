package engine

import "github.com/cbegin/noteblock-go/internal/sampler"

type cacheEntry struct {
	inst *sampler.Instance
	refs int
}

// samplerCache owns every live sampler instance, reference counted by key.
type samplerCache struct {
	sampleRate int
	params     sampler.Params
	entries    map[sampler.Key]*cacheEntry
}

func newSamplerCache(sampleRate int, params sampler.Params) *samplerCache {
	return &samplerCache{sampleRate: sampleRate, params: params, entries: map[sampler.Key]*cacheEntry{}}
}

// acquire returns the instance for key, creating it from clip if needed.
func (c *samplerCache) acquire(key sampler.Key, clip *sampler.Clip) *sampler.Instance {
	if ent, ok := c.entries[key]; ok {
		ent.refs++
		return ent.inst
	}
	inst := sampler.NewInstanceWithParams(key, clip, c.sampleRate, c.params)
	c.entries[key] = &cacheEntry{inst: inst, refs: 1}
	return inst
}

// release drops one reference and disposes the instance when none remain.
func (c *samplerCache) release(key sampler.Key) {
	ent, ok := c.entries[key]
	if !ok {
		return
	}
	ent.refs--
	if ent.refs <= 0 {
		ent.inst.Dispose()
		delete(c.entries, key)
	}
}

func (c *samplerCache) render(dst []float32) {
	for _, ent := range c.entries {
		ent.inst.Render(dst)
	}
}

func (c *samplerCache) silence() {
	for _, ent := range c.entries {
		ent.inst.Silence()
	}
}

func (c *samplerCache) activeVoices() int {
	n := 0
	for _, ent := range c.entries {
		n += ent.inst.ActiveVoices()
	}
	return n
}

func (c *samplerCache) disposeAll() {
	for k, ent := range c.entries {
		ent.inst.Dispose()
		delete(c.entries, k)
	}
}

func (c *samplerCache) len() int { return len(c.entries) }
