package registryserver

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/sha3"

	"bundleloader/internal/loader"
)

// Config 描述注册中心 HTTP 服务的可选项。
type Config struct {
	// AllowOrigins 为空时允许任意来源跨域访问。
	AllowOrigins []string
	// BundleDir 非空时在 /bundle/ 下提供产物静态文件。
	BundleDir string
	Log       loader.Logger
}

type handler struct {
	store Store
	log   loader.Logger
}

// NewRouter 构建注册中心路由：GET /latest/:name/:version 与可选的 /bundle 静态目录。
// store 实现 Publisher 时额外挂载 POST /publish/:name/:version。
func NewRouter(store Store, cfg Config) *gin.Engine {
	h := &handler{store: store, log: loader.DefaultLogger(cfg.Log)}

	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Accept", "Content-Type", "If-None-Match"},
		ExposeHeaders: []string{"ETag", "Content-Length"},
	}
	if len(cfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/latest/:name/:version", h.latest)
	if p, ok := store.(Publisher); ok {
		r.POST("/publish/:name/:version", h.publish(p))
	}
	if cfg.BundleDir != "" {
		r.Static("/bundle", cfg.BundleDir)
	}
	return r
}

func (h *handler) latest(c *gin.Context) {
	id := loader.Identity{Name: c.Param("name"), ContractVersion: c.Param("version")}
	md, err := h.store.Latest(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.log.Errorf("lookup %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registry lookup failed"})
		return
	}

	body, err := json.Marshal(md)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	etag := entityTag(body)
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *handler) publish(p Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := loader.Identity{Name: c.Param("name"), ContractVersion: c.Param("version")}
		var md loader.Metadata
		if err := c.ShouldBindJSON(&md); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if md.ArtifactURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "artifactUrl is required"})
			return
		}
		ref, err := p.Publish(c.Request.Context(), id, md)
		if err != nil {
			h.log.Errorf("publish %s: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registry publish failed"})
			return
		}
		h.log.Infof("published %s as %s", id, ref)
		c.JSON(http.StatusCreated, gin.H{"name": ref})
	}
}

// entityTag 以响应体的 SHA3-256 生成强 ETag。
func entityTag(body []byte) string {
	sum := sha3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
