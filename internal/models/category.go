package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Category is the kind of cluster member. It partitions the registry.
type Category int32

// Known categories. CategoryNone is only ever a parse result for
// unrecognized input and is never stored.
const (
	CategoryNone Category = iota
	CategoryGate
	CategoryGame
	CategoryHall
	CategoryWorld
	CategoryChat
	CategoryLogin
)

var categoryNames = [...]string{
	CategoryNone:  "NONE",
	CategoryGate:  "GATE",
	CategoryGame:  "GAME",
	CategoryHall:  "HALL",
	CategoryWorld: "WORLD",
	CategoryChat:  "CHAT",
	CategoryLogin: "LOGIN",
}

// Categories lists every valid storage category.
func Categories() []Category {
	return []Category{CategoryGate, CategoryGame, CategoryHall, CategoryWorld, CategoryChat, CategoryLogin}
}

// ParseCategory maps a wire number to a category, CategoryNone if unknown.
func ParseCategory(n int) Category {
	if n <= int(CategoryNone) || n >= len(categoryNames) {
		return CategoryNone
	}

	return Category(n)
}

// ParseCategoryName accepts a case-insensitive name ("gate") or a number ("1").
func ParseCategoryName(s string) Category {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return ParseCategory(n)
	}

	s = strings.ToUpper(s)
	for _, c := range Categories() {
		if categoryNames[c] == s {
			return c
		}
	}

	return CategoryNone
}

// Valid reports whether c is a storable category.
func (c Category) Valid() bool {
	return c > CategoryNone && int(c) < len(categoryNames)
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "NONE"
	}

	return categoryNames[c]
}

// MarshalJSON writes the category name.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts either the numeric wire value or the name.
// Unknown values decode to CategoryNone rather than failing, so the
// registry can report them as an unknown category.
func (c *Category) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*c = ParseCategory(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("category must be a number or a name: %w", err)
	}
	*c = ParseCategoryName(s)

	return nil
}
