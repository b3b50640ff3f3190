package testing

// Pairs returns every ordered pair of distinct logins
// e.g. [a, b, c] -> [[a,b], [a,c], [b,a], [b,c], [c,a], [c,b]]
func Pairs(logins []string) [][2]string {
	pairs := make([][2]string, 0, len(logins)*(len(logins)-1))
	for i, owner := range logins {
		for j, target := range logins {
			if i != j {
				pairs = append(pairs, [2]string{owner, target})
			}
		}
	}

	return pairs
}
