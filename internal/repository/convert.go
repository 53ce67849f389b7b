package repository

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Addresses are stored as checksummed hex and amounts as NUMERIC passed
// through text, so no precision is lost on either side.

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid stored address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q", s)
	}
	return n, nil
}

func amountText(n *big.Int) *string {
	if n == nil {
		return nil
	}
	s := n.String()
	return &s
}
