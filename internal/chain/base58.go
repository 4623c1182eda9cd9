package chain

import (
	"fmt"
	"math/big"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var base58Index = func() [256]int {
	var idx [256]int
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base58Alphabet); i++ {
		idx[base58Alphabet[i]] = i
	}
	return idx
}()

func base58Decode(input string) ([]byte, error) {
	if input == "" {
		return nil, fmt.Errorf("empty base58 string")
	}
	zeros := 0
	for zeros < len(input) && input[zeros] == '1' {
		zeros++
	}

	num := new(big.Int)
	base := big.NewInt(58)
	for i := 0; i < len(input); i++ {
		val := base58Index[input[i]]
		if val < 0 {
			return nil, fmt.Errorf("invalid base58 character: %c", input[i])
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(int64(val)))
	}

	decoded := num.Bytes()
	out := make([]byte, zeros+len(decoded))
	copy(out[zeros:], decoded)
	return out, nil
}

func base58Encode(input []byte) string {
	num := new(big.Int).SetBytes(input)
	base := big.NewInt(58)
	mod := new(big.Int)

	var result []byte
	for num.Sign() > 0 {
		num.DivMod(num, base, mod)
		result = append(result, base58Alphabet[mod.Int64()])
	}
	for _, b := range input {
		if b != 0 {
			break
		}
		result = append(result, '1')
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return string(result)
}
