package maps

import "strings"

// Rows are written top (highest y) to bottom so the layouts read like the
// rendered board; parseRows transposes them into Tiles[x][y].
var builtin = map[string][]string{
	"default_map": {
		"1111111111",
		"3333333333",
		"3300330033",
		"3300330033",
		"3333333333",
		"3333333333",
		"3300330033",
		"3300330033",
		"3333333333",
		"2222222222",
	},
	"loops": {
		"2333333332",
		"3000000003",
		"3011111103",
		"3010000103",
		"3013333103",
		"3013333103",
		"3010000103",
		"3011111103",
		"3000000003",
		"2333113332",
	},
	"empty_10": {
		"3333333333",
		"3333333333",
		"3333333333",
		"3333333333",
		"3333333333",
		"3333333333",
		"3333333333",
		"3333333333",
		"3333333333",
		"3333333333",
	},
}

func Builtin(name string) (Map, bool) {
	rows, ok := builtin[name]
	if !ok {
		return Map{}, false
	}
	return Map{Name: name, Tiles: parseRows(rows)}, true
}

func parseRows(rows []string) [][]int {
	h := len(rows)
	if h == 0 {
		return nil
	}
	w := len(strings.TrimSpace(rows[0]))
	tiles := make([][]int, w)
	for x := range tiles {
		tiles[x] = make([]int, h)
	}
	for r, row := range rows {
		y := h - 1 - r
		for x := 0; x < w && x < len(row); x++ {
			tiles[x][y] = int(row[x] - '0')
		}
	}
	return tiles
}
