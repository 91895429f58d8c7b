package driver

import (
	"encoding/json"
	"fmt"
)

// Init scripts installing the fingerprint facets that browser context
// options cannot express. Each runs before any page script.

func webglScript(o Overrides) string {
	return fmt.Sprintf(`
		const getParameter = WebGLRenderingContext.prototype.getParameter;
		WebGLRenderingContext.prototype.getParameter = function(parameter) {
			if (parameter === 37445) return %q;
			if (parameter === 37446) return %q;
			return getParameter.apply(this, arguments);
		};`, o.WebGLVendor, o.WebGLRenderer)
}

const canvasScript = `
	const originalGetContext = HTMLCanvasElement.prototype.getContext;
	HTMLCanvasElement.prototype.getContext = function(type) {
		const context = originalGetContext.apply(this, arguments);
		if (type === '2d') {
			const originalFillText = context.fillText;
			context.fillText = function() {
				const result = originalFillText.apply(this, arguments);
				const imageData = this.getImageData(0, 0, 1, 1);
				imageData.data[0] += Math.floor(Math.random() * 10);
				this.putImageData(imageData, 0, 0);
				return result;
			};
		}
		return context;
	};`

func fontsScript(o Overrides) string {
	list, _ := json.Marshal(o.Fonts)
	return fmt.Sprintf(`
		Object.defineProperty(navigator, 'fonts', {
			get: () => ({
				check: () => true,
				ready: Promise.resolve(),
				values: () => %s
			})
		});`, list)
}

const webdriverScript = `
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined,
	});`

func initScripts(o Overrides) []string {
	return []string{
		webglScript(o),
		canvasScript,
		fontsScript(o),
		webdriverScript,
	}
}
