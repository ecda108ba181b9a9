package browser

import "browser-agent/internal/entity"

const (
	labelAttribute = entity.LabelAttribute

	markPageCall    = "window.markPage()"
	removeMarksCall = "window.removeStyleMarks()"
)

// markPageScript installs markPage and removeStyleMarks on window. Evaluating
// it more than once is safe.
func markPageScript() string {
	return `(() => {
	if (!document.getElementById('__agent_scrollbar_style')) {
		const style = document.createElement('style');
		style.id = '__agent_scrollbar_style';
		style.textContent = '::-webkit-scrollbar { width: 10px; } ' +
			'::-webkit-scrollbar-track { background: #27272a; } ' +
			'::-webkit-scrollbar-thumb { background: #888; border-radius: 0.375rem; }';
		(document.head || document.documentElement).append(style);
	}

	window.__agentMarks = window.__agentMarks || [];

	const selectors = [
		'a', 'button', 'input', 'textarea', 'select',
		"[role='button']", "[role='link']", "[role='checkbox']", "[role='radio']",
		"[role='tab']", "[role='menuitem']", '[onclick]', "[tabindex='0']",
	];

	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') {
			return false;
		}
		if (el.offsetWidth <= 0 || el.offsetHeight <= 0) {
			return false;
		}
		const rect = el.getBoundingClientRect();
		const vw = Math.max(document.documentElement.clientWidth || 0, window.innerWidth || 0);
		const vh = Math.max(document.documentElement.clientHeight || 0, window.innerHeight || 0);
		return rect.top < vh && rect.left < vw && rect.bottom > 0 && rect.right > 0;
	};

	const randomColor = () => {
		const hex = '0123456789ABCDEF';
		let color = '#';
		for (let i = 0; i < 6; i++) {
			color += hex[Math.floor(Math.random() * 16)];
		}
		return color;
	};

	window.removeStyleMarks = () => {
		for (const mark of window.__agentMarks) {
			mark.remove();
		}
		window.__agentMarks = [];
		return true;
	};

	window.markPage = () => {
		window.removeStyleMarks();
		document.querySelectorAll('[` + labelAttribute + `]').forEach((el) => el.removeAttribute('` + labelAttribute + `'));

		let items = [];
		document.querySelectorAll(selectors.join(', ')).forEach((el) => {
			if (!isVisible(el)) {
				return;
			}
			items.push({
				element: el,
				rect: el.getBoundingClientRect(),
				text: (el.textContent || '').trim().replace(/\s{2,}/g, ' '),
				type: el.tagName.toLowerCase(),
				ariaLabel: el.getAttribute('aria-label') || '',
			});
		});

		// Keep only the innermost interactive elements.
		items = items.filter((x) => !items.some((y) => x !== y && x.element.contains(y.element)));

		items.forEach((item, index) => {
			if (item.type === 'a') {
				item.element.setAttribute('target', '_self');
			}
			item.element.setAttribute('` + labelAttribute + `', String(index));

			const color = randomColor();
			const mark = document.createElement('div');
			Object.assign(mark.style, {
				outline: '2px dashed ' + color,
				position: 'fixed',
				left: item.rect.left + 'px',
				top: item.rect.top + 'px',
				width: item.rect.width + 'px',
				height: item.rect.height + 'px',
				pointerEvents: 'none',
				boxSizing: 'border-box',
				zIndex: 2147483647,
			});

			const label = document.createElement('div');
			label.textContent = String(index);
			Object.assign(label.style, {
				position: 'absolute',
				top: '-19px',
				left: '0px',
				background: color,
				color: 'white',
				padding: '2px 4px',
				fontSize: '12px',
				borderRadius: '2px',
			});

			mark.appendChild(label);
			document.body.appendChild(mark);
			window.__agentMarks.push(mark);
		});

		return items.map((item) => ({
			x: item.rect.x + item.rect.width / 2,
			y: item.rect.y + item.rect.height / 2,
			text: item.text,
			type: item.type,
			ariaLabel: item.ariaLabel,
		}));
	};

	return true;
})()`
}
