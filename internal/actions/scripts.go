// internal/actions/scripts.go
package actions

// Script bodies run through browser.ScriptRunner. Each is the inside of a
// function and reads its inputs from arguments[i]. Anything that may open a
// blocking dialog is deferred with setTimeout so the script call itself
// returns before the page blocks.

const scriptScrollIntoView = `arguments[0].scrollIntoView({block: 'center', inline: 'center'});`

// arguments: element, event type, button.
const scriptDispatchMouseEvent = `
var el = arguments[0], type = arguments[1], button = arguments[2];
setTimeout(function () {
  el.dispatchEvent(new MouseEvent(type, {
    bubbles: true, cancelable: true, view: window, button: button, buttons: button === 2 ? 2 : 1
  }));
}, 0);`

const scriptClick = `
var el = arguments[0];
setTimeout(function () { el.click(); }, 0);`

// arguments: message.
const scriptForceAlert = `
var message = arguments[0];
setTimeout(function () { alert(message); }, 0);`

// arguments: source, target.
const scriptHTML5DragAndDrop = `
var source = arguments[0], target = arguments[1];
function transfer() {
  return {
    data: {}, types: [], dropEffect: 'move', effectAllowed: 'all', files: [], items: [],
    setData: function (k, v) { this.data[k] = v; if (this.types.indexOf(k) < 0) this.types.push(k); },
    getData: function (k) { return this.data[k]; },
    clearData: function (k) { if (k) { delete this.data[k]; } else { this.data = {}; } },
    setDragImage: function () {}
  };
}
function fire(el, type, dt) {
  var ev = new Event(type, {bubbles: true, cancelable: true});
  Object.defineProperty(ev, 'dataTransfer', {value: dt});
  el.dispatchEvent(ev);
  return ev;
}
var dt = transfer();
fire(source, 'dragstart', dt);
fire(target, 'dragenter', dt);
fire(target, 'dragover', dt);
fire(target, 'drop', dt);
fire(source, 'dragend', dt);`

// arguments: root (or null for the document), selector.
const scriptForceVisible = `
var root = arguments[0] || document;
var el = root.querySelector(arguments[1]);
if (el) {
  el.style.display = 'block';
  el.style.opacity = '1';
  el.style.visibility = 'visible';
}
return !!el;`

// arguments: root (or null for the document), selector.
const scriptVisibleUnder = `
var root = arguments[0] || document;
var el = root.querySelector(arguments[1]);
if (!el) { return false; }
var style = window.getComputedStyle(el);
var rect = el.getBoundingClientRect();
return style.display !== 'none' && style.visibility !== 'hidden' &&
  style.opacity !== '0' && (rect.width > 0 || rect.height > 0);`

// arguments: element.
const scriptComputedVisibility = `
var style = window.getComputedStyle(arguments[0]);
return {opacity: style.opacity, display: style.display};`

// arguments: element.
const scriptVisibleText = `
var el = arguments[0];
return ((el.innerText !== undefined ? el.innerText : el.textContent) || '').trim();`

// arguments: element.
const scriptReadValue = `
var el = arguments[0];
return el.isContentEditable ? el.textContent : (el.value === undefined ? '' : String(el.value));`

// arguments: element, text. Uses the prototype setter so frameworks that
// track the value property observe the change.
const scriptSetValue = `
var el = arguments[0], text = arguments[1];
el.focus();
if (el.isContentEditable) {
  el.textContent = text;
} else {
  var proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
  var desc = Object.getOwnPropertyDescriptor(proto, 'value');
  if (desc && desc.set) { desc.set.call(el, text); } else { el.value = text; }
}
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));`
