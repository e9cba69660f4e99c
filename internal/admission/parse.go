package admission

import "strconv"

func redisInt(v string) (int, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	return int(n), err
}

func redisFloat(v string) (float64, error) {
	return strconv.ParseFloat(v, 64)
}
