package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/scopectl/internal/debugger"
	"github.com/danmuck/scopectl/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type runtimeView struct {
	RuntimeID uint32 `json:"runtime_id"`
	WindowID  uint32 `json:"window_id"`
	FramePath string `json:"frame_path"`
	URI       string `json:"uri,omitempty"`
}

type activeView struct {
	RuntimeID  uint32 `json:"runtime_id"`
	WindowID   uint32 `json:"window_id"`
	FramePath  string `json:"frame_path"`
	Generation uint64 `json:"generation"`
}

type windowView struct {
	WindowID   uint32 `json:"window_id"`
	Title      string `json:"title"`
	WindowType string `json:"window_type"`
	OpenerID   uint32 `json:"opener_id,omitempty"`
	Active     bool   `json:"active"`
}

// selectRequest picks a runtime by frame path or by index; Index wins when set.
type selectRequest struct {
	FramePath string `json:"frame_path"`
	Index     *int   `json:"index"`
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.Appeared).String(),
			"service": a.Name,
			"session": a.dbg.SessionID(),
			"version": version,
		})
	})

	a.router.GET("/ready", func(c *gin.Context) {
		_, ok := a.dbg.ActiveRuntime()
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ok,
			"uptime":  time.Since(a.Appeared).String(),
			"service": a.Name,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/runtimes", func(c *gin.Context) {
		list := a.dbg.Registry().List()
		views := make([]runtimeView, 0, len(list))
		for _, info := range list {
			views = append(views, toRuntimeView(info))
		}
		c.JSON(http.StatusOK, gin.H{
			"active":   a.activeView(),
			"runtimes": views,
		})
	})

	a.router.GET("/frames", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"window_id": a.windows.ActiveWindowID(),
			"frames":    a.dbg.ListFramePaths(),
		})
	})

	a.router.POST("/runtime", func(c *gin.Context) {
		var req selectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var (
			active debugger.ActiveRuntime
			err    error
		)
		if req.Index != nil {
			active, err = a.dbg.ChangeRuntimeIndex(*req.Index)
		} else {
			active, err = a.dbg.ChangeRuntime(req.FramePath)
		}
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, debugger.ErrNoSuchFrame) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		a.log.Info().
			Uint32("runtime", active.ID).
			Str("frame", active.FramePath).
			Msg("runtime selected")
		c.JSON(http.StatusOK, gin.H{"active": toActiveView(active)})
	})

	a.router.GET("/windows", func(c *gin.Context) {
		activeID := a.windows.ActiveWindowID()
		list := a.windows.List()
		views := make([]windowView, 0, len(list))
		for _, w := range list {
			views = append(views, windowView{
				WindowID:   w.WindowID,
				Title:      w.Title,
				WindowType: w.WindowType,
				OpenerID:   w.OpenerID,
				Active:     w.WindowID == activeID,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"active_window": activeID,
			"windows":       views,
		})
	})
}

func (a *Admin) activeView() *activeView {
	active, ok := a.dbg.ActiveRuntime()
	if !ok {
		return nil
	}
	v := toActiveView(active)
	return &v
}

func toActiveView(r debugger.ActiveRuntime) activeView {
	return activeView{
		RuntimeID:  r.ID,
		WindowID:   r.WindowID,
		FramePath:  r.FramePath,
		Generation: r.Generation,
	}
}

func toRuntimeView(info session.RuntimeInfo) runtimeView {
	return runtimeView{
		RuntimeID: info.RuntimeID,
		WindowID:  info.WindowID,
		FramePath: info.FramePath,
		URI:       info.URI,
	}
}
