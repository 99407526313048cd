package chain

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// defaultParams 只给出方法名时使用 ERC-20 风格的签名
var defaultParams = []string{"address", "uint256"}

var ErrInvalidCall = errors.New("invalid contract call")

// ParseMethod 解析 "transfer" 或 "approve(address,uint256)"
func ParseMethod(method string) (string, []string, error) {
	method = strings.TrimSpace(method)
	open := strings.IndexByte(method, '(')
	if open < 0 {
		if method == "" {
			return "", nil, fmt.Errorf("%w: empty method", ErrInvalidCall)
		}
		return method, defaultParams, nil
	}

	if !strings.HasSuffix(method, ")") || open == 0 {
		return "", nil, fmt.Errorf("%w: malformed signature %q", ErrInvalidCall, method)
	}
	name := method[:open]
	inner := strings.TrimSpace(method[open+1 : len(method)-1])
	if strings.ContainsAny(inner, "()") {
		return "", nil, fmt.Errorf("%w: tuple parameters are not supported", ErrInvalidCall)
	}
	if inner == "" {
		return name, nil, nil
	}

	params := strings.Split(inner, ",")
	for i := range params {
		params[i] = strings.TrimSpace(params[i])
	}
	return name, params, nil
}

// EncodeCall 编码 calldata: selector + abi 编码参数
func EncodeCall(method string, args []string) ([]byte, error) {
	name, params, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	if len(params) != len(args) {
		return nil, fmt.Errorf("%w: %s expects %d args, got %d", ErrInvalidCall, name, len(params), len(args))
	}

	inputs := make(abi.Arguments, 0, len(params))
	values := make([]interface{}, 0, len(params))
	for i, p := range params {
		typ, err := abi.NewType(p, "", nil)
		if err != nil {
			return nil, fmt.Errorf("%w: type %q: %v", ErrInvalidCall, p, err)
		}
		v, err := coerceArg(typ, args[i])
		if err != nil {
			return nil, fmt.Errorf("%w: arg %d: %v", ErrInvalidCall, i, err)
		}
		inputs = append(inputs, abi.Argument{Name: fmt.Sprintf("arg%d", i), Type: typ})
		values = append(values, v)
	}

	m := abi.NewMethod(name, name, abi.Function, "nonpayable", false, false, inputs, nil)
	packed, err := inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack: %v", ErrInvalidCall, err)
	}
	return append(append([]byte{}, m.ID...), packed...), nil
}

func coerceArg(typ abi.Type, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	switch typ.T {
	case abi.AddressTy:
		return parseAddress(raw)
	case abi.UintTy, abi.IntTy:
		return coerceInt(typ, raw)
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy:
		return hexutil.Decode(raw)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(b) != typ.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", typ.Size, len(b))
		}
		arr := reflect.New(typ.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported type %s", typ.String())
	}
}

// coerceInt 支持 "1000"、"1e18" 这类十进制写法
func coerceInt(typ abi.Type, raw string) (interface{}, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", raw)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("%q is not an integer", raw)
	}
	v := d.BigInt()

	if typ.T == abi.UintTy {
		if v.Sign() < 0 {
			return nil, fmt.Errorf("%q is negative for %s", raw, typ.String())
		}
		if v.BitLen() > typ.Size {
			return nil, fmt.Errorf("%q overflows %s", raw, typ.String())
		}
		switch typ.Size {
		case 8:
			return uint8(v.Uint64()), nil
		case 16:
			return uint16(v.Uint64()), nil
		case 32:
			return uint32(v.Uint64()), nil
		case 64:
			return v.Uint64(), nil
		}
		return v, nil
	}

	limit := new(big.Int).Lsh(big.NewInt(1), uint(typ.Size-1))
	if v.Cmp(limit) >= 0 || v.Cmp(new(big.Int).Neg(limit)) < 0 {
		return nil, fmt.Errorf("%q overflows %s", raw, typ.String())
	}
	switch typ.Size {
	case 8:
		return int8(v.Int64()), nil
	case 16:
		return int16(v.Int64()), nil
	case 32:
		return int32(v.Int64()), nil
	case 64:
		return v.Int64(), nil
	}
	return v, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
