package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate

	hexChainID = regexp.MustCompile(`^0[xX][0-9a-fA-F]{1,16}$`)
)

// Init 在 gin 的校验引擎上注册自定义规则，需在注册路由前调用
func Init() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding engine is not go-playground/validator")
	}
	validate = v

	if err := v.RegisterValidation("evm_address", isEVMAddress); err != nil {
		return err
	}
	return v.RegisterValidation("hex_chain_id", isHexChainID)
}

// evm_address: 0x 开头的 20 字节地址
func isEVMAddress(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// hex_chain_id: 例如 0x61, 0xaa36a7
func isHexChainID(fl validator.FieldLevel) bool {
	return hexChainID.MatchString(strings.TrimSpace(fl.Field().String()))
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var errMsgs []string
		for _, e := range validationErrors {
			field := e.Field()
			tag := e.Tag()
			param := e.Param()

			switch tag {
			case "required":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不能为空", field))
			case "evm_address":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不是合法的地址", field))
			case "hex_chain_id":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是十六进制链 ID", field))
			case "min":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度至少为 %s", field, param))
			case "max":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度不能超过 %s", field, param))
			case "oneof":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 [%s] 之一", field, param))
			default:
				errMsgs = append(errMsgs, fmt.Sprintf("%s 校验失败 (%s)", field, tag))
			}
		}
		return strings.Join(errMsgs, "; ")
	}
	return "请求参数错误"
}
