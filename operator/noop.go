package operator

// noopOperator bypasses compression entirely. Useful as the default operator
// and as a baseline for measuring the benefit of the others.
type noopOperator struct{}

var _ Operator = noopOperator{}

func (noopOperator) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (noopOperator) Decompress(data []byte, _ int) ([]byte, error) {
	return data, nil
}
