package app

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/pollen_dashboard/internal/chart"
	"github.com/relabs-tech/pollen_dashboard/internal/dashboard"
)

const (
	defaultPNGWidth  = 640
	defaultPNGHeight = 320
	maxPNGSide       = 4096
)

// stateView is the /api/state payload: the raw state plus its display text.
type stateView struct {
	State dashboard.State `json:"state"`
	Text  dashboard.Text  `json:"text"`
}

func newStateView(dash *dashboard.Dashboard) stateView {
	s := dash.Snapshot()
	return stateView{State: s, Text: s.Text()}
}

// requestLogger logs each request at debug level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("web: request")
	}
}

// newRouter builds the dashboard HTTP surface. webRoot, when it names an
// existing directory, is served for every path no route claims.
func newRouter(dash *dashboard.Dashboard, hub *Hub, webRoot string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api")
	api.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, newStateView(dash))
	})
	api.GET("/map", func(c *gin.Context) {
		b, err := dash.MapFeatures().MarshalJSON()
		if err != nil {
			log.WithField("err", err).Error("web: encode map features")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "encode map"})
			return
		}
		c.Data(http.StatusOK, "application/geo+json", b)
	})
	api.GET("/charts", func(c *gin.Context) {
		c.JSON(http.StatusOK, dash.Charts().Views())
	})

	charts := api.Group("/charts/:key", chartLookup(dash.Charts()))
	charts.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, chartFrom(c).View())
	})
	charts.GET("/export.csv", exportCSV)
	charts.GET("/chart.png", renderPNG)
	charts.POST("/toggle", func(c *gin.Context) {
		ch := chartFrom(c)
		visible, err := dash.Charts().Toggle(ch.Key)
		if err != nil {
			// chartLookup already resolved the key
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		log.Infof("web: chart %s visible=%t", ch.Key, visible)
		c.JSON(http.StatusOK, gin.H{"key": ch.Key, "visible": visible})
	})

	r.GET("/ws", hub.ServeWS)

	if webRoot != "" {
		if fi, err := os.Stat(webRoot); err == nil && fi.IsDir() {
			r.NoRoute(gin.WrapH(http.FileServer(http.Dir(webRoot))))
		} else {
			log.Warnf("web: static root %s not found, serving API only", webRoot)
		}
	}
	return r
}

const chartKey = "chart"

// chartLookup resolves :key once for every chart route. An unknown key is
// logged and answered with 404.
func chartLookup(reg *chart.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, err := reg.Get(c.Param("key"))
		if err != nil {
			log.WithField("err", err).Error("web: chart lookup")
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Set(chartKey, ch)
		c.Next()
	}
}

func chartFrom(c *gin.Context) *chart.Chart {
	return c.MustGet(chartKey).(*chart.Chart)
}

func exportCSV(c *gin.Context) {
	ch := chartFrom(c)

	var buf bytes.Buffer
	if err := ch.Series.ExportCSV(&buf, ch.Columns, ch.CSVOptions()...); err != nil {
		log.WithField("err", err).Errorf("web: export %s", ch.Key)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ch.Filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func renderPNG(c *gin.Context) {
	ch := chartFrom(c)

	width, err := sizeParam(c, "width", defaultPNGWidth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	height, err := sizeParam(c, "height", defaultPNGHeight)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := ch.RenderPNG(&buf, width, height); err != nil {
		log.WithField("err", err).Errorf("web: render %s", ch.Key)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func sizeParam(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > maxPNGSide {
		return 0, errors.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}
