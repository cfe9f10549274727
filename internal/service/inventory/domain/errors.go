// internal/service/inventory/domain/errors.go
package domain

import "github.com/pkg/errors"

// 库存域的错误分类。调用方通过 errors.Is 判断类别：
//   - ErrNotFound:          仓库/SKU/预占记录不存在，请求本身无效，原样重试无意义
//   - ErrInsufficientStock: 当前时刻无法满足请求的库存，延迟后可重试
//   - ErrConflict:          非法状态流转或不变量被破坏，说明输掉了一次并发竞争，
//     上层操作可以从头安全重试
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock available")
	ErrConflict          = errors.New("conflict")
)
