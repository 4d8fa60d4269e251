// Package handler 把 HTTP 请求翻译成 service 调用，统一输出 {success, ...} 响应
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"aimate/internal/apperr"
	"aimate/pkg/logger"
	"aimate/pkg/util"
)

// UserIDKey 是认证中间件写入 gin.Context 的键
const UserIDKey = "user_id"

const dateLayout = "2006-01-02"

var registerOnce sync.Once

// RegisterValidators 注册 enum 校验：字段类型实现 Valid() bool 即可使用 `binding:"omitempty,enum"`
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
			if e, ok := fl.Field().Interface().(interface{ Valid() bool }); ok {
				return e.Valid()
			}
			return false
		})
	})
}

func init() { RegisterValidators() }

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(UserIDKey)
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("Invalid id")
	}
	return id, nil
}

// bindJSON 解析请求体；空请求体视为 {}
func bindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperr.Validation("Invalid value for " + verrs[0].Field())
	}
	return apperr.Wrap(apperr.KindValidation, "Invalid request body", err)
}

// respondError 把错误转成 {success:false, error}，5xx 记录错误日志
func respondError(c *gin.Context, log *zap.Logger, err error, extra ...gin.H) {
	e := apperr.From(err)
	status := e.Kind.Status()
	l := logger.WithTrace(c.Request.Context(), log)
	if status >= http.StatusInternalServerError {
		l.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(e.Kind)),
			zap.Error(err))
	} else {
		l.Debug("request rejected", zap.String("path", c.FullPath()), zap.String("error", e.Message))
	}

	body := gin.H{"success": false, "error": e.Message}
	if e.Details != nil {
		body["details"] = e.Details
	}
	if status >= http.StatusInternalServerError {
		if retryable, _ := util.IsRetryableError(err); retryable {
			body["retryable"] = true
		}
	}
	for _, h := range extra {
		for k, v := range h {
			body[k] = v
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// Date 接受 RFC3339 或 YYYY-MM-DD
type Date struct{ time.Time }

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, ok := parseDate(s)
	if !ok {
		return &time.ParseError{Layout: time.RFC3339, Value: s}
	}
	d.Time = t
	return nil
}

// OptionalDate 区分字段缺省、显式 null 和有值
type OptionalDate struct {
	Set   bool
	Value *time.Time
}

func (o *OptionalDate) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var d Date
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	o.Value = &d.Time
	return nil
}

func datePtr(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// queryDate 解析日期查询参数；end 为纯日期时取当天最后一刻，使区间包含当天
func queryDate(c *gin.Context, name string, end bool) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, ok := parseDate(raw)
	if !ok {
		return nil, apperr.Validation("Invalid " + name)
	}
	if end && len(strings.TrimSpace(raw)) == len(dateLayout) {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("Invalid " + name)
	}
	return n, nil
}
