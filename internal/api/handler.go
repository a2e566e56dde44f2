package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/akumuli/akumulid-edge/internal/model"
	"github.com/akumuli/akumulid-edge/internal/query"
)

type handler struct {
	proc   *query.Processor
	logger *slog.Logger
}

// health reports engine reachability.
func (h *handler) health(c *gin.Context) {
	if _, err := h.proc.GetAllStats(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// stats returns the engine's textual statistics blob with host CPU/memory
// figures appended, the same two gopsutil calls the teacher's health
// handler uses to fill out its ServerStatsResponse.
func (h *handler) stats(c *gin.Context) {
	text, err := h.proc.GetAllStats()
	if err != nil {
		h.writeProcessorError(c, err)
		return
	}
	c.String(http.StatusOK, text+h.hostStatsText())
}

// hostStatsText reports process-host CPU and memory usage alongside the
// engine's own counters; a gopsutil read failure is noted inline rather
// than failing the whole stats response.
func (h *handler) hostStatsText() string {
	out := fmt.Sprintf("\nhost.num_cpu\t%d\n", runtime.NumCPU())

	if percents, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(percents) > 0 {
		out += fmt.Sprintf("host.cpu_used_percent\t%.2f\n", percents[0])
	} else if h.logger != nil {
		h.logger.Warn("api: read cpu stats failed", "err", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		out += fmt.Sprintf("host.mem_total_mb\t%.2f\n", float64(vm.Total)/1024/1024)
		out += fmt.Sprintf("host.mem_used_mb\t%.2f\n", float64(vm.Used)/1024/1024)
		out += fmt.Sprintf("host.mem_used_percent\t%.2f\n", vm.UsedPercent)
	} else if h.logger != nil {
		h.logger.Warn("api: read memory stats failed", "err", err)
	}

	return out
}

// resource returns an engine-exposed textual resource by name (e.g.
// "series", "functions").
func (h *handler) resource(c *gin.Context) {
	name := c.Param("name")
	text, err := h.proc.GetResource(name)
	if err != nil {
		h.writeProcessorError(c, err)
		return
	}
	c.String(http.StatusOK, text)
}

// query streams a range-query response through a QueryResultsPooler:
// the request body becomes the query text, and the response body is
// produced by successive ReadSome calls until the pooler reports
// complete — the one handler in this package that exercises the
// streaming pipeline end to end (spec.md §4.3/§4.4).
func (h *handler) query(endpoint model.ApiEndpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		pooler, err := h.proc.Create(endpoint)
		if err != nil {
			h.writeProcessorError(c, err)
			return
		}
		defer pooler.Close()

		if err := pooler.Append(body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := pooler.Start(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.Status(http.StatusOK)
		c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
		c.Writer.WriteHeaderNow()

		buf := make([]byte, h.proc.ReadBufferSize())
		for {
			n, complete, err := pooler.ReadSome(buf)
			if n > 0 {
				if _, werr := c.Writer.Write(buf[:n]); werr != nil {
					if h.logger != nil {
						h.logger.Warn("api: client disconnected mid-stream", "err", werr)
					}
					return
				}
			}
			if err != nil {
				if h.logger != nil {
					h.logger.Error("api: query stream error", "err", err)
				}
				return
			}
			if complete {
				return
			}
		}
	}
}

func (h *handler) writeProcessorError(c *gin.Context, err error) {
	if errors.Is(err, query.ErrConnectionClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
