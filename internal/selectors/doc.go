// Package selectors derives display state from cache entries: the health
// tier that gates job creation, per-status job counts, and the filtered and
// sorted job view handed to the list windower. Everything here is a pure
// function of its inputs and computed on read.
package selectors
